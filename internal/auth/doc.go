// Package auth obtains and manages Zotero API credentials.
//
// Flow drives the three-legged OAuth 1.0a handshake: a signed request-token
// call, the user's grant in a browser window, the access-token exchange, and
// verification that the issued key can read and write the user's library.
// Only one handshake runs at a time; concurrent callers of Authorize share
// its outcome.
//
// Manager reads, writes and clears the persisted credential set and can
// install a preconfigured API key without any handshake:
//
//	flow, _ := auth.NewFlow(cfg, transport, browser, store)
//	manager, _ := auth.NewManager(store, flow)
//	if creds := manager.GetCredentials(ctx); creds == nil {
//		info, err := manager.Authorize(ctx)
//		// ...
//	}
package auth
