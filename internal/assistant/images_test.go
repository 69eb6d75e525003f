package assistant

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"noteassist/internal/services"
	"noteassist/pkg/assisttypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImages struct {
	refs []string
	err  error
	req  assisttypes.ImageRequest
}

func (f *fakeImages) GenerateImages(_ context.Context, req assisttypes.ImageRequest) ([]string, error) {
	f.req = req
	return f.refs, f.err
}

type fakeDownloader map[string]string

func (d fakeDownloader) Download(_ context.Context, ref string) ([]byte, error) {
	data, ok := d[ref]
	if !ok {
		return nil, errors.New("404")
	}
	return []byte(data), nil
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) Copy(text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

func fixedID() string { return "abcd1234" }

func TestImageSpecFor_Catalog(t *testing.T) {
	catalog := services.NewModelCatalogService()
	require.NoError(t, catalog.Initialize())

	spec, err := ImageSpecFor(catalog, "dall-e-3")
	require.NoError(t, err)
	assert.Equal(t, 1, spec.MaxImages)
	assert.True(t, spec.HD)
	assert.Equal(t, "1024x1024", spec.Sizes[0])

	_, err = ImageSpecFor(catalog, "gpt-4o")
	assert.Error(t, err, "chat models are not image models")
}

func TestImageSpec_Request(t *testing.T) {
	dalle3 := ImageSpec{Model: "dall-e-3", MaxImages: 1, Sizes: []string{"1024x1024", "1792x1024"}, HD: true}
	dalle2 := ImageSpec{Model: "dall-e-2", MaxImages: 10, Sizes: []string{"256x256", "512x512", "1024x1024"}}

	req, err := dalle3.Request(" a cat ", "", 4, true)
	require.NoError(t, err)
	assert.Equal(t, assisttypes.ImageRequest{Model: "dall-e-3", Prompt: "a cat", Size: "1024x1024", Count: 1, HD: true}, req)

	req, err = dalle2.Request("a cat", "512x512", 20, true)
	require.NoError(t, err)
	assert.Equal(t, 10, req.Count)
	assert.False(t, req.HD)

	req, err = dalle2.Request("a cat", "256x256", 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, req.Count)

	_, err = dalle2.Request("a cat", "1792x1024", 1, false)
	assert.ErrorContains(t, err, "not supported")

	_, err = dalle2.Request("  ", "", 1, false)
	assert.Error(t, err)
}

func TestImageStudio_GenerateReportsErrors(t *testing.T) {
	notifier := &recording{}
	studio := NewImageStudio(&fakeImages{err: errors.New("quota")}, fakeDownloader{}, nil, notifier, t.TempDir(), "images")

	_, err := studio.Generate(t.Context(), assisttypes.ImageRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, []string{"Error: quota"}, notifier.notices)
}

func TestImageStudio_SaveWritesFilesAndCopiesLinks(t *testing.T) {
	vault := t.TempDir()
	clipboard := &fakeClipboard{}
	notifier := &recording{}
	downloads := fakeDownloader{
		"https://cdn.example.com/img/cat.png?sig=1": "cat",
		"https://cdn.example.com/img/dog":           "dog",
	}
	studio := NewImageStudio(&fakeImages{}, downloads, clipboard, notifier, vault, "AI Images")
	studio.newID = fixedID

	saved, err := studio.Save(t.Context(), []string{
		"https://cdn.example.com/img/cat.png?sig=1",
		"https://cdn.example.com/img/dog",
		"https://cdn.example.com/img/missing.png",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"AI Images/cat.png", "AI Images/dog.png"}, saved.Paths)
	assert.Equal(t, 1, saved.Failed)
	assert.Equal(t, "![](AI%20Images/cat.png)\n\n![](AI%20Images/dog.png)\n", saved.Links)
	assert.Equal(t, saved.Links, clipboard.text)

	data, err := os.ReadFile(filepath.Join(vault, "AI Images", "dog.png"))
	require.NoError(t, err)
	assert.Equal(t, "dog", string(data))

	assert.Equal(t, []string{
		"Failed to download image: missing.png",
		"2 image(s) saved to AI Images.",
		"Failed to save 1 image(s).",
		"Image links copied to clipboard.",
	}, notifier.notices)
}

func TestImageStudio_SaveClipboardFailure(t *testing.T) {
	notifier := &recording{}
	studio := NewImageStudio(&fakeImages{}, fakeDownloader{"https://x/a.png": "a"}, &fakeClipboard{err: errors.New("no display")}, notifier, t.TempDir(), "img")

	saved, err := studio.Save(t.Context(), []string{"https://x/a.png"})
	require.NoError(t, err)
	assert.Len(t, saved.Paths, 1)
	assert.Equal(t, "Error while copying image links to clipboard.", notifier.notices[len(notifier.notices)-1])
}

func TestImageStudio_SaveNothing(t *testing.T) {
	studio := NewImageStudio(&fakeImages{}, fakeDownloader{}, nil, nil, t.TempDir(), "img")
	saved, err := studio.Save(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, saved.Paths)
	assert.Empty(t, saved.Links)
}

func TestImageName(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"https://example.com/a/photo.JPG", "photo.JPG"},
		{"https://example.com/a/img-1", "img-1.png"},
		{"https://example.com/a/my%20pic.webp", "my_pic.webp"},
		{"https://example.com/", "ai-image-abcd1234.png"},
		{"data:image/png;base64,AAAA", "ai-image-abcd1234.png"},
		{"https://example.com/a/we!rd$name.gif", "we_rd_name.gif"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, ImageName(tt.ref, fixedID))
		})
	}
}

func TestMarkdownImageLink(t *testing.T) {
	assert.Equal(t, "![](a/b.png)", MarkdownImageLink("a/b.png"))
	assert.True(t, strings.Contains(MarkdownImageLink("AI Images/x.png"), "AI%20Images"))
}

type recording struct {
	notices []string
}

func (r *recording) Notify(message string) {
	r.notices = append(r.notices, message)
}
