package chat

// vision.go implements one-shot image question answering.
//
// Describe bypasses the retrieval pipeline and session history entirely:
// the image and question go straight to the configured vision model.

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// ErrVisionDisabled indicates no vision model was configured.
var ErrVisionDisabled = errors.New("vision model not configured")

// Describe answers a question about an image file.
// The session history is neither read nor written.
func (p *Pipeline) Describe(ctx context.Context, imagePath, question string) (string, error) {
	if p.vision == nil || p.visionModel == "" {
		return "", ErrVisionDisabled
	}
	if strings.TrimSpace(question) == "" {
		question = "Describe this image in detail."
	}

	imagePart, err := imageFilePart(imagePath)
	if err != nil {
		return "", err
	}

	msg := ai.NewUserMessage(imagePart, ai.NewTextPart(question))
	answer, err := p.vision.GenerateOnce(ctx, p.visionModel, []*ai.Message{msg})
	if err != nil {
		return "", fmt.Errorf("describing image: %w", err)
	}
	return answer, nil
}

// imageFilePart reads an image file and creates an ai.Part with a
// base64 data URI.
func imageFilePart(imagePath string) (*ai.Part, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", imagePath, err)
	}

	// Detect via magic bytes first; extensions can be wrong.
	mediaType := http.DetectContentType(imageData)
	if !strings.HasPrefix(mediaType, "image/") {
		ext := strings.ToLower(filepath.Ext(imagePath))
		switch ext {
		case ".jpg", ".jpeg":
			mediaType = "image/jpeg"
		case ".png":
			mediaType = "image/png"
		case ".gif":
			mediaType = "image/gif"
		case ".webp":
			mediaType = "image/webp"
		default:
			return nil, fmt.Errorf("file is not a valid image (detected: %s, extension: %s)", mediaType, ext)
		}
	}

	base64Image := base64.StdEncoding.EncodeToString(imageData)
	return ai.NewMediaPart(mediaType, "data:"+mediaType+";base64,"+base64Image), nil
}
