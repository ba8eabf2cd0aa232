package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	goversion "github.com/hashicorp/go-version"

	"github.com/robotnikz/sunflow/pkg/log"
)

const (
	releaseEndpoint = "https://api.github.com/repos/robotnikz/sunflow/releases/latest"
	releaseCacheTTL = time.Hour

	// releaseRetryBackoff keeps a failed check from hammering GitHub while
	// still retrying well before the regular interval.
	releaseRetryBackoff = 5 * time.Minute
)

// releaseCache holds the result of the GitHub latest-release lookup.
type releaseCache struct {
	http *resty.Client

	mu              sync.Mutex
	checkedAt       time.Time
	latestVersion   string
	releaseURL      string
	updateAvailable bool
}

type versionInfo struct {
	Version         string `json:"version"`
	LatestVersion   string `json:"latestVersion"`
	UpdateAvailable bool   `json:"updateAvailable"`
	ReleaseURL      string `json:"releaseUrl"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.releaseCheck.info(r.Context(), s.clk.Now(), s.version))
}

func (c *releaseCache) info(ctx context.Context, now time.Time, current string) versionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.checkedAt) >= releaseCacheTTL {
		c.refresh(ctx, now, current)
	}

	out := versionInfo{
		Version:         current,
		LatestVersion:   c.latestVersion,
		UpdateAvailable: c.updateAvailable,
		ReleaseURL:      c.releaseURL,
	}
	if out.LatestVersion == "" {
		out.LatestVersion = current
	}
	return out
}

func (c *releaseCache) refresh(ctx context.Context, now time.Time, current string) {
	var body struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("User-Agent", "sunflow").
		SetResult(&body).
		Get(releaseEndpoint)
	if err != nil || !resp.IsSuccess() || body.TagName == "" {
		log.Ctx(ctx).WarnContext(ctx, "release check failed", "error", err)
		c.checkedAt = now.Add(releaseRetryBackoff - releaseCacheTTL)
		return
	}
	c.checkedAt = now

	latest, err := goversion.NewVersion(body.TagName)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "unparseable release tag", "tag", body.TagName)
		return
	}
	c.latestVersion = latest.String()
	c.releaseURL = body.HTMLURL
	c.updateAvailable = false
	if cur, err := goversion.NewVersion(current); err == nil {
		c.updateAvailable = latest.GreaterThan(cur)
	}
}
