// Package update replaces the running todomagic binary with the latest
// GitHub release build for this platform.
package update

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// DefaultAPI is the GitHub REST API root.
const DefaultAPI = "https://api.github.com"

// checksumsAsset is the release file listing "<sha256>  <asset name>" lines.
const checksumsAsset = "checksums.txt"

// ErrChecksum is returned when a download does not match the published digest.
var ErrChecksum = errors.New("checksum mismatch")

// Release is a newer build available for this platform.
type Release struct {
	Version string `json:"version"`
	Asset   string `json:"asset"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256,omitempty"` // empty when the release publishes no checksums
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Updater checks GitHub for newer releases and installs them.
type Updater struct {
	CurrentVersion string
	RepoOwner      string
	RepoName       string
	BinaryName     string // asset prefix: "todomagic" matches "todomagic_linux_amd64", not "todomagicd_..."
	APIBase        string
	GOOS, GOARCH   string
	httpClient     *http.Client
}

// New returns an Updater for binary from the GoCodeAlone/todomagic releases.
func New(currentVersion, binary string) *Updater {
	return &Updater{
		CurrentVersion: currentVersion,
		RepoOwner:      "GoCodeAlone",
		RepoName:       "todomagic",
		BinaryName:     binary,
		APIBase:        DefaultAPI,
		GOOS:           runtime.GOOS,
		GOARCH:         runtime.GOARCH,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
}

// get issues a GET and returns the body of a 200 response.
func (u *Updater) get(ctx context.Context, url string, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", "todomagic/"+u.CurrentVersion)
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close() //nolint:errcheck
		return nil, fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// CheckForUpdate returns the latest release when it is newer than the running
// version, or nil when already current. Dev builds never update.
func (u *Updater) CheckForUpdate(ctx context.Context) (*Release, error) {
	if u.CurrentVersion == "dev" {
		return nil, nil
	}
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest",
		strings.TrimRight(u.APIBase, "/"), u.RepoOwner, u.RepoName)
	body, err := u.get(ctx, url, "application/vnd.github+json")
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}
	defer body.Close() //nolint:errcheck

	var rel githubRelease
	if err := json.NewDecoder(body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	if !Newer(rel.TagName, u.CurrentVersion) {
		return nil, nil
	}

	asset, ok := u.platformAsset(rel.Assets)
	if !ok {
		return nil, fmt.Errorf("no %s asset for %s/%s in %s", u.BinaryName, u.GOOS, u.GOARCH, rel.TagName)
	}
	out := &Release{Version: rel.TagName, Asset: asset.Name, URL: asset.BrowserDownloadURL}
	for _, a := range rel.Assets {
		if a.Name != checksumsAsset {
			continue
		}
		sums, err := u.checksums(ctx, a.BrowserDownloadURL)
		if err != nil {
			return nil, err
		}
		sum, ok := sums[asset.Name]
		if !ok {
			return nil, fmt.Errorf("%s lists no digest for %s", checksumsAsset, asset.Name)
		}
		out.SHA256 = sum
	}
	return out, nil
}

// checksums downloads and parses a checksums file.
func (u *Updater) checksums(ctx context.Context, url string) (map[string]string, error) {
	body, err := u.get(ctx, url, "")
	if err != nil {
		return nil, fmt.Errorf("fetch checksums: %w", err)
	}
	defer body.Close() //nolint:errcheck

	sums := make(map[string]string)
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		sums[strings.TrimPrefix(fields[1], "*")] = strings.ToLower(fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}
	return sums, nil
}

// Newer reports whether version a is later than b. Both may carry a "v"
// prefix; pre-release and build suffixes are ignored.
func Newer(a, b string) bool {
	pa, pb := versionParts(a), versionParts(b)
	for i := range pa {
		if pa[i] != pb[i] {
			return pa[i] > pb[i]
		}
	}
	return false
}

func versionParts(v string) [3]int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	var out [3]int
	for i, p := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		out[i] = n
	}
	return out
}

// platformAsset picks the binary built for the updater's OS and architecture.
func (u *Updater) platformAsset(assets []githubAsset) (githubAsset, bool) {
	arches := []string{u.GOARCH}
	if u.GOARCH == "amd64" {
		arches = append(arches, "x86_64")
	}
	for _, a := range assets {
		name := strings.ToLower(a.Name)
		if u.BinaryName != "" && !strings.HasPrefix(name, u.BinaryName+"_") && !strings.HasPrefix(name, u.BinaryName+"-") {
			continue
		}
		if !strings.Contains(name, u.GOOS) {
			continue
		}
		for _, arch := range arches {
			if strings.Contains(name, arch) {
				return a, true
			}
		}
	}
	return githubAsset{}, false
}

// ApplyUpdate installs release over the running executable.
func (u *Updater) ApplyUpdate(ctx context.Context, release *Release) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	return u.replace(ctx, release, exe)
}

// replace downloads release next to target, checks its digest when one is
// known, and renames it over target.
func (u *Updater) replace(ctx context.Context, release *Release, target string) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".todomagic-update-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
	}()

	body, err := u.get(ctx, release.URL, "application/octet-stream")
	if err != nil {
		return fmt.Errorf("download %s: %w", release.Version, err)
	}
	defer body.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), body); err != nil {
		return fmt.Errorf("write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if release.SHA256 != "" {
		if got := hex.EncodeToString(h.Sum(nil)); got != release.SHA256 {
			return fmt.Errorf("%w: %s has %s, want %s", ErrChecksum, release.Asset, got, release.SHA256)
		}
	}

	if err := os.Chmod(tmpPath, 0o755); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("replace binary: %w", err)
	}
	return nil
}
