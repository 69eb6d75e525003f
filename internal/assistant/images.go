package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"noteassist/internal/logger"
	"noteassist/internal/services"
	"noteassist/pkg/assisttypes"
)

var (
	unsafeImageChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	imageExtension   = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif|webp)$`)
)

// ImageDownloader fetches the bytes behind an image reference.
type ImageDownloader interface {
	Download(ctx context.Context, ref string) ([]byte, error)
}

// Clipboard receives text for pasting elsewhere.
type Clipboard interface {
	Copy(text string) error
}

// ImageSpec constrains a request for one image model.
type ImageSpec struct {
	Model     string
	MaxImages int
	Sizes     []string
	HD        bool
}

// ImageSpecFor reads the constraints of model from the catalog.
func ImageSpecFor(catalog *services.ModelCatalogService, model string) (ImageSpec, error) {
	entry, ok := catalog.Lookup(model)
	if !ok || entry.Kind != services.KindImage {
		return ImageSpec{}, fmt.Errorf("unknown image model %q", model)
	}
	return ImageSpec{Model: entry.ID, MaxImages: entry.MaxImages, Sizes: entry.Sizes, HD: entry.HD}, nil
}

// Request builds a request within the spec. An empty size takes the model's first size,
// the count is clamped to [1, MaxImages] and HD is dropped for models without it.
func (s ImageSpec) Request(prompt, size string, count int, hd bool) (assisttypes.ImageRequest, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return assisttypes.ImageRequest{}, errors.New("image prompt is empty")
	}
	if size == "" && len(s.Sizes) > 0 {
		size = s.Sizes[0]
	}
	if len(s.Sizes) > 0 && !slices.Contains(s.Sizes, size) {
		return assisttypes.ImageRequest{}, fmt.Errorf("size %s is not supported by %s (choose from %s)", size, s.Model, strings.Join(s.Sizes, ", "))
	}
	maxImages := max(s.MaxImages, 1)
	count = min(max(count, 1), maxImages)
	return assisttypes.ImageRequest{
		Model:  s.Model,
		Prompt: prompt,
		Size:   size,
		Count:  count,
		HD:     hd && s.HD,
	}, nil
}

// ImageStudio generates images and saves the chosen ones into the vault.
type ImageStudio struct {
	provider   assisttypes.ImageProvider
	downloader ImageDownloader
	clipboard  Clipboard
	notifier   assisttypes.Notifier
	vaultDir   string
	folder     string
	newID      func() string
}

// NewImageStudio saves into folder (relative to vaultDir). clipboard may be nil.
func NewImageStudio(provider assisttypes.ImageProvider, downloader ImageDownloader, clipboard Clipboard, notifier assisttypes.Notifier, vaultDir, folder string) *ImageStudio {
	if notifier == nil {
		notifier = assisttypes.NotifierFunc(func(string) {})
	}
	return &ImageStudio{
		provider:   provider,
		downloader: downloader,
		clipboard:  clipboard,
		notifier:   notifier,
		vaultDir:   vaultDir,
		folder:     folder,
		newID:      func() string { return uuid.NewString()[:8] },
	}
}

// Generate returns references to the generated images.
func (s *ImageStudio) Generate(ctx context.Context, req assisttypes.ImageRequest) ([]string, error) {
	refs, err := s.provider.GenerateImages(ctx, req)
	if err != nil {
		s.notifier.Notify("Error: " + err.Error())
		return nil, err
	}
	return refs, nil
}

// SavedImages is the outcome of Save.
type SavedImages struct {
	// Paths are vault-relative, slash separated.
	Paths  []string
	Failed int
	// Links holds one markdown image link per saved path.
	Links string
}

// Save downloads refs into the image folder and copies markdown links for the saved
// files to the clipboard. Individual download failures are counted, not fatal.
func (s *ImageStudio) Save(ctx context.Context, refs []string) (SavedImages, error) {
	var result SavedImages
	if len(refs) == 0 {
		return result, nil
	}
	dir := filepath.Join(s.vaultDir, filepath.FromSlash(s.folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.notifier.Notify("Error creating image folder: " + s.folder)
		return result, fmt.Errorf("failed to create image folder: %w", err)
	}

	for _, ref := range refs {
		name := ImageName(ref, s.newID)
		data, err := s.downloader.Download(ctx, ref)
		if err == nil {
			err = os.WriteFile(filepath.Join(dir, name), data, 0o644)
		}
		if err != nil {
			logger.Error("Failed to save image", "name", name, "error", err)
			s.notifier.Notify("Failed to download image: " + name)
			result.Failed++
			continue
		}
		result.Paths = append(result.Paths, path.Join(s.folder, name))
	}

	if len(result.Paths) > 0 {
		s.notifier.Notify(fmt.Sprintf("%d image(s) saved to %s.", len(result.Paths), s.folder))
	}
	if result.Failed > 0 {
		s.notifier.Notify(fmt.Sprintf("Failed to save %d image(s).", result.Failed))
	}
	if len(result.Paths) == 0 {
		return result, nil
	}

	links := make([]string, len(result.Paths))
	for i, p := range result.Paths {
		links[i] = MarkdownImageLink(p)
	}
	result.Links = strings.Join(links, "\n\n") + "\n"
	if s.clipboard != nil {
		if err := s.clipboard.Copy(result.Links); err != nil {
			logger.Debug("Clipboard copy failed", "error", err)
			s.notifier.Notify("Error while copying image links to clipboard.")
		} else {
			s.notifier.Notify("Image links copied to clipboard.")
		}
	}
	return result, nil
}

// ImageName derives a file name from an image URL: the last path segment, with ".png"
// appended unless it already has an image extension, and unsafe characters replaced by
// "_". References without a usable segment get "ai-image-<id>.png".
func ImageName(ref string, newID func() string) string {
	fallback := "ai-image-" + newID() + ".png"
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "data" || u.Path == "" {
		return fallback
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return fallback
	}
	if !imageExtension.MatchString(name) {
		name += ".png"
	}
	return unsafeImageChars.ReplaceAllString(name, "_")
}

// MarkdownImageLink embeds a vault-relative image path.
func MarkdownImageLink(p string) string {
	return "![](" + strings.ReplaceAll(p, " ", "%20") + ")"
}
