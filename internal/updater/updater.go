// Package updater checks a release manifest for newer MEGAcmd versions.
package updater

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/levigross/grequests"
	"github.com/urfave/cli/v2"

	"github.com/cshum/megacmd/internal/config"
)

const (
	DefaultManifestURL = "https://mega.nz/MEGAcmd/release.json"

	// AutoUpdateProperty enables the check at server start.
	AutoUpdateProperty = "autoupdate"

	requestTimeout = 15 * time.Second
)

// Manifest describes the latest release.
type Manifest struct {
	Version string   `json:"version"`
	URL     string   `json:"url"`
	Notes   []string `json:"notes"`
}

type Result struct {
	Current string
	Latest  Manifest
	Newer   bool
}

// Check fetches the manifest at url and compares it with current.
func Check(ctx context.Context, url, current string) (*Result, error) {
	resp, err := grequests.Get(url,
		grequests.FromRequestOptions(&grequests.RequestOptions{
			Headers: map[string]string{"Accept": "application/json"},
		}),
		grequests.Context(ctx),
		grequests.RequestTimeout(requestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("manifest request failed: %w", err)
	}
	defer resp.Close()
	if !resp.Ok {
		return nil, fmt.Errorf("manifest request failed with status %d", resp.StatusCode)
	}
	var m Manifest
	if err := resp.JSON(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Version == "" {
		return nil, fmt.Errorf("manifest has no version")
	}
	return &Result{
		Current: current,
		Latest:  m,
		Newer:   CompareVersions(m.Version, current) > 0,
	}, nil
}

// CompareVersions compares dotted versions such as "v2.1.0" or
// "2.1.0-beta". A pre-release sorts before its release.
func CompareVersions(a, b string) int {
	an, apre := splitVersion(a)
	bn, bpre := splitVersion(b)
	for i := 0; i < max(len(an), len(bn)); i++ {
		var x, y int
		if i < len(an) {
			x = an[i]
		}
		if i < len(bn) {
			y = bn[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	switch {
	case apre == bpre:
		return 0
	case apre == "":
		return 1
	case bpre == "":
		return -1
	}
	return strings.Compare(apre, bpre)
}

func splitVersion(v string) ([]int, string) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	v, pre, _ := strings.Cut(v, "-")
	var nums []int
	for _, part := range strings.Split(v, ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			n = 0
		}
		nums = append(nums, n)
	}
	return nums, pre
}

// Message is the notice shown to users when a newer version exists.
func (r *Result) Message() string {
	if !r.Newer {
		return fmt.Sprintf("MEGAcmd %s is up to date", r.Current)
	}
	msg := fmt.Sprintf("A new version of MEGAcmd is available: %s (current %s)", r.Latest.Version, r.Current)
	if r.Latest.URL != "" {
		msg += "\nDownload it from " + r.Latest.URL
	}
	return msg
}

func Command() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Check whether a newer MEGAcmd is available",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Only report, exit with 1 when a newer version exists",
			},
		},
		Action: func(c *cli.Context) error {
			url := config.GetConfig().GetString("update_url", DefaultManifestURL)
			r, err := Check(c.Context, url, config.Version)
			if err != nil {
				return err
			}
			fmt.Println(r.Message())
			for _, note := range r.Latest.Notes {
				if r.Newer {
					fmt.Printf(" - %s\n", note)
				}
			}
			if r.Newer && c.Bool("check") {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
