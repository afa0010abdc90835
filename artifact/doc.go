// Package artifact fetches native module builds.
//
// A Source names where a build lives (http, https, file:// or a plain
// path) and optionally the SHA-256 digest it must have. A Fetcher maps a
// concrete runtime mode to its Source, downloads or reads the bytes,
// verifies the digest and, with WithCacheDir, keeps a content-addressed
// copy on disk so later fetches skip the network.
//
//	f := artifact.NewFetcher(artifact.DefaultSources(),
//	    artifact.WithCacheDir("~/.cache/physx"))
//	data, err := f.Fetch(ctx, physxruntime.ModeInterpreted)
package artifact
