// Package storecache provides a locale-aware response cache and layout
// direction coordinator for storefront clients.
//
// Responses from the commerce API are cached in two tiers: an in-process
// ephemeral tier and a durable tier on a key-value medium (Badger, Redis or
// memory). Every entry is tagged with the locale it was fetched under, so
// switching between English and Arabic never serves data of the other
// language. A Prefetcher warms both locales in the background, and a
// Coordinator switches the active locale, invalidates its cache and tells the
// host when the layout direction flips.
//
// Basic usage:
//
//	import (
//	    "context"
//	    "github.com/ZaguanLabs/storecache"
//	    "github.com/ZaguanLabs/storecache/cache"
//	    "github.com/ZaguanLabs/storecache/commerce"
//	)
//
//	func main() {
//	    ctx := context.Background()
//	    medium := cache.NewMemoryMedium()
//
//	    rc := storecache.New(medium)
//	    source := commerce.NewHTTPSource(commerce.HTTPConfig{BaseURL: "https://api.example.com/v1"})
//	    prefetch := storecache.NewPrefetcher(rc, source)
//
//	    coord, err := storecache.NewCoordinator(rc, prefetch,
//	        storecache.NewStoredDirection(medium),
//	        storecache.NewPreferences(medium),
//	        storecache.WithRestartHook(func(c storecache.Change) { /* restart UI */ }),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    active := coord.Initialize(ctx)
//	    prefetch.Start(ctx, active)
//
//	    state, _ := coord.SelectLocale(ctx, "ar") // storecache.StateAwaitingRestart
//	}
package storecache
