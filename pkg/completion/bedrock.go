package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/flowforge/flowforge/pkg/models"
)

// Default Bedrock models per generation tier.
const (
	DefaultEconomyModel = "anthropic.claude-3-haiku-20240307-v1:0"
	DefaultPremiumModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

	defaultRegion    = "us-east-1"
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 2048
)

// converseAPI is the Bedrock runtime method used here.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockConfig configures the Bedrock completer.
type BedrockConfig struct {
	Region       string
	EconomyModel string
	PremiumModel string
	Timeout      time.Duration
}

// BedrockCompleter implements Completer with the Bedrock Converse API.
type BedrockCompleter struct {
	client  converseAPI
	models  map[models.GenerationTier]string
	timeout time.Duration
	logger  *slog.Logger
}

// NewBedrockCompleter creates a completer using the default AWS credential chain.
func NewBedrockCompleter(ctx context.Context, cfg BedrockConfig, logger *slog.Logger) (*BedrockCompleter, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newBedrockCompleter(bedrockruntime.NewFromConfig(awsCfg), cfg, logger), nil
}

func newBedrockCompleter(client converseAPI, cfg BedrockConfig, logger *slog.Logger) *BedrockCompleter {
	economy := cfg.EconomyModel
	if economy == "" {
		economy = DefaultEconomyModel
	}

	premium := cfg.PremiumModel
	if premium == "" {
		premium = DefaultPremiumModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &BedrockCompleter{
		client: client,
		models: map[models.GenerationTier]string{
			models.GenerationTierEconomy: economy,
			models.GenerationTierPremium: premium,
		},
		timeout: timeout,
		logger:  logger.With("module", "completion"),
	}
}

// ModelFor returns the model used for a generation tier.
func (c *BedrockCompleter) ModelFor(tier models.GenerationTier) string {
	if model, ok := c.models[tier]; ok {
		return model
	}

	return c.models[models.GenerationTierEconomy]
}

// Complete implements Completer. The call is bounded by the configured timeout.
func (c *BedrockCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.ModelFor(req.Tier)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(0),
		},
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
		}},
	}

	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	started := time.Now()

	output, err := c.client.Converse(ctx, input)
	if err != nil {
		return nil, mapBedrockError(err)
	}

	response := &Response{Model: model}

	if output.Usage != nil {
		response.InputTokens = int(aws.ToInt32(output.Usage.InputTokens))
		response.OutputTokens = int(aws.ToInt32(output.Usage.OutputTokens))
	}

	if message, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		var parts []string

		for _, block := range message.Value.Content {
			if text, ok := block.(*types.ContentBlockMemberText); ok {
				parts = append(parts, text.Value)
			}
		}

		response.Text = strings.Join(parts, "")
	}

	c.logger.DebugContext(ctx, "Completion finished",
		"model", model,
		"input_tokens", response.InputTokens,
		"output_tokens", response.OutputTokens,
		"duration", time.Since(started))

	return response, nil
}

func mapBedrockError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("%w: %w", ErrThrottled, err)
		case "AccessDeniedException", "UnrecognizedClientException":
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case "ModelNotReadyException", "ServiceUnavailableException", "InternalServerException":
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	return fmt.Errorf("bedrock converse: %w", err)
}
