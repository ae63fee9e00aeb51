package fetcher

import (
	"context"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

// Fetcher is the common capability contract of every tier:
// dryrun fixtures, raw HTTP, the crawler tier, and the full browser.
//
// Fetch returns a FetchResult even for non-OK statuses; a ClassifiedError
// is reserved for failures where no HTTP-level outcome exists (transport
// errors surface as status 0 results instead, so cooldown bookkeeping
// still happens).
type Fetcher interface {
	Start(ctx context.Context) failure.ClassifiedError
	Stop(ctx context.Context) failure.ClassifiedError
	Fetch(ctx context.Context, source Source) (FetchResult, failure.ClassifiedError)
	Mode() string
}

// fetcher mode names; these appear in telemetry and config.
const (
	ModeNameDryRun         = "dryrun"
	ModeNameHTTP           = "http"
	ModeNameBrowserCrawler = "browser-crawler"
	ModeNameBrowserFull    = "browser-full"
)
