package classify

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/maneesh/safeupload/internal/models"
	"google.golang.org/api/option"
)

// VisionAnalyzer runs Google Cloud Vision safe-search detection
type VisionAnalyzer struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionAnalyzer creates the Vision client. credentialsFile may be empty
// to use application default credentials.
func NewVisionAnalyzer(ctx context.Context, credentialsFile string) (*VisionAnalyzer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vision client: %w", err)
	}
	return &VisionAnalyzer{client: client}, nil
}

// Close closes the Vision connection
func (va *VisionAnalyzer) Close() error {
	return va.client.Close()
}

// SafeSearch sends one annotate request; there are no retries.
func (va *VisionAnalyzer) SafeSearch(ctx context.Context, image []byte) (models.SafetyScore, error) {
	resp, err := va.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_SAFE_SEARCH_DETECTION}},
		}},
	})
	if err != nil {
		return models.SafetyScore{}, fmt.Errorf("vision request failed: %w", err)
	}

	responses := resp.GetResponses()
	if len(responses) == 0 {
		return models.SafetyScore{}, &AnalyzerError{Message: "empty response"}
	}
	return scoreFromResponse(responses[0])
}

func scoreFromResponse(r *visionpb.AnnotateImageResponse) (models.SafetyScore, error) {
	if msg := r.GetError().GetMessage(); msg != "" {
		return models.SafetyScore{}, &AnalyzerError{Message: msg}
	}

	annotation := r.GetSafeSearchAnnotation()
	return models.SafetyScore{
		Adult:    likelihood(annotation.GetAdult()),
		Violence: likelihood(annotation.GetViolence()),
		Racy:     likelihood(annotation.GetRacy()),
	}, nil
}

func likelihood(l visionpb.Likelihood) models.Likelihood {
	switch l {
	case visionpb.Likelihood_VERY_UNLIKELY:
		return models.VeryUnlikely
	case visionpb.Likelihood_UNLIKELY:
		return models.Unlikely
	case visionpb.Likelihood_POSSIBLE:
		return models.Possible
	case visionpb.Likelihood_LIKELY:
		return models.Likely
	case visionpb.Likelihood_VERY_LIKELY:
		return models.VeryLikely
	}
	return models.Unknown
}
