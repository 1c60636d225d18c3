package storecache

import (
	"errors"
	"testing"
)

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := &StorageError{Op: "set", Key: "rc:en:a?", Cause: cause}

	if err.Error() != "storage error: set rc:en:a?: disk full" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}

	// Without key
	err2 := &StorageError{Op: "list", Cause: cause}
	if err2.Error() != "storage error: list: disk full" {
		t.Errorf("unexpected error message: %s", err2.Error())
	}
}

func TestCorruptEntryError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &CorruptEntryError{Key: "rc:ar:x?", Cause: cause}

	if err.Error() != "corrupt entry rc:ar:x?: unexpected end of JSON input" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestInvalidationError(t *testing.T) {
	cause := errors.New("timeout")

	err := &InvalidationError{Locale: "ar", Failed: 3, Cause: cause}
	expected := "partial invalidation of locale ar: 3 keys not deleted: timeout"
	if err.Error() != expected {
		t.Errorf("unexpected error message: %s, want %s", err.Error(), expected)
	}

	global := &InvalidationError{Cause: cause}
	expected = "partial invalidation of all locales: timeout"
	if global.Error() != expected {
		t.Errorf("unexpected error message: %s, want %s", global.Error(), expected)
	}
}

func TestErrorsAs(t *testing.T) {
	inner := &StorageError{Op: "delete", Key: "k", Cause: errors.New("boom")}
	err := &InvalidationError{Locale: "en", Failed: 1, Cause: inner}

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatal("errors.As should find the StorageError")
	}
	if se.Op != "delete" {
		t.Errorf("Op = %s, want delete", se.Op)
	}
}
