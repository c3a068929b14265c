package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/denkond/hrgate/internal/errs"
)

// Markers embedded in raw answers by the generation instructions.
const (
	// answeredMarker prefixes on-topic answers.
	answeredMarker = "Answer to your question:"
	// answerDelimiter separates the answer from trailing diagnostics; anything
	// past it must never reach the chat user.
	answerDelimiter = "**********"
)

// FallbackAnswer replaces an empty or unusable answer.
const FallbackAnswer = "Sorry, I could not process your request. " +
	"Please rephrase the question or try again later."

// TokenSource supplies a bearer token for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Options are the fixed generation parameters sent with every question.
type Options struct {
	Temperature         float64 `json:"temperature"`
	TokensRequestLimit  int     `json:"tokens_request_limit"`
	TokensResponseLimit int     `json:"tokens_response_limit"`
	TopP                float64 `json:"top_p"`
	FrequencyPenalty    float64 `json:"frequency_penalty"`
	PresencePenalty     float64 `json:"presence_penalty"`
	Instructions        string  `json:"instructions"`
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// DefaultOptions returns the production generation parameters.
func DefaultOptions() Options {
	return Options{
		Temperature:         0.45,
		TokensRequestLimit:  3000,
		TokensResponseLimit: 1000,
		TopP:                1,
		TopK:                9,
		SimilarityThreshold: 0.45,
		Instructions: "You are the company HR assistant. Answer only questions related " +
			"to working at the company. Start every such answer with '" + answeredMarker + "'. " +
			"If the question is unclear or unrelated to work, reply: " +
			"'I cannot process this question. Please rephrase it.'",
	}
}

// PollPolicy bounds the answer-polling loop.
type PollPolicy struct {
	Base     time.Duration // first backoff step
	Cap      time.Duration // maximum backoff step
	Attempts uint64        // total attempts, including the first
}

// DefaultPollPolicy mirrors the production retry budget.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Base: time.Second, Cap: 10 * time.Second, Attempts: 8}
}

// Client drives the create/poll/delete chat protocol of the inference API.
type Client struct {
	tokens         TokenSource
	httpc          *http.Client
	baseURL        string
	trainedModelID int
	ragID          int
	opts           Options
	poll           PollPolicy
	logger         *zap.Logger
}

// NewClient constructs a client. A nil httpc gets a timeout-bounded default.
func NewClient(tokens TokenSource, httpc *http.Client, baseURL string, trainedModelID, ragID int, opts Options, poll PollPolicy, logger *zap.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if poll.Attempts == 0 {
		poll = DefaultPollPolicy()
	}
	return &Client{
		tokens:         tokens,
		httpc:          httpc,
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		trainedModelID: trainedModelID,
		ragID:          ragID,
		opts:           opts,
		poll:           poll,
		logger:         logger,
	}
}

type createRequest struct {
	TrainedModelID int     `json:"trained_model_id"`
	RagID          int     `json:"rag_id"`
	Text           string  `json:"text"`
	Options        Options `json:"options"`
}

type createResponse struct {
	ID json.Number `json:"id"`
}

type chatResponse struct {
	Data []struct {
		Text string `json:"text"`
	} `json:"data"`
}

// Ask sends a question through the full protocol and returns the cleaned
// answer text. Once a chat is created and an answer obtained, the failure
// mode is the fallback text, never an error.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	reqID := uuid.Must(uuid.NewV4()).String()
	log := c.logger.With(zap.String("request_id", reqID))

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	chatID, err := c.createChat(ctx, token, question)
	if err != nil {
		return "", err
	}
	log.Info("chat created", zap.String("chat_id", chatID))

	chatURL := fmt.Sprintf("%s/chat/%s", c.baseURL, chatID)
	answer, err := c.pollAnswer(ctx, token, chatURL)

	// Best-effort cleanup regardless of the poll outcome.
	c.deleteChat(ctx, token, chatURL, log)

	if err != nil {
		return "", err
	}
	return cleanAnswer(answer), nil
}

// createChat posts the question. No retry here: a failed create is fatal for
// this request.
func (c *Client) createChat(ctx context.Context, token, question string) (string, error) {
	body, err := json.Marshal(createRequest{
		TrainedModelID: c.trainedModelID,
		RagID:          c.ragID,
		Text:           question,
		Options:        c.opts,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: create chat status %d", errs.ErrUpstream, resp.StatusCode)
	}
	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("%w: decode create response: %v", errs.ErrUpstream, err)
	}
	if created.ID.String() == "" {
		return "", fmt.Errorf("%w: create response missing chat id", errs.ErrUpstream)
	}
	return created.ID.String(), nil
}

// pollAnswer fetches the chat until an answer text appears, with bounded
// exponential backoff. Exhaustion surfaces the last observed error.
func (c *Client) pollAnswer(ctx context.Context, token, chatURL string) (string, error) {
	backoff := retry.WithMaxRetries(c.poll.Attempts-1,
		retry.WithCappedDuration(c.poll.Cap, retry.NewExponential(c.poll.Base)))

	var answer string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, chatURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(resp.Body)
			return retry.RetryableError(
				fmt.Errorf("%w: poll status %d: %s", errs.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(raw))))
		}
		var chat chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
			return retry.RetryableError(fmt.Errorf("%w: decode chat: %v", errs.ErrUpstream, err))
		}
		if len(chat.Data) == 0 || chat.Data[0].Text == "" {
			return retry.RetryableError(fmt.Errorf("%w: answer not present yet", errs.ErrUpstream))
		}
		answer = chat.Data[0].Text
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

// deleteChat removes the remote resource. Failure is logged, never returned:
// the answer, if any, is already in hand.
func (c *Client) deleteChat(ctx context.Context, token, chatURL string, log *zap.Logger) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, chatURL, nil)
	if err != nil {
		log.Warn("delete chat", zap.Error(err))
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		log.Warn("delete chat", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn("delete chat", zap.Int("status", resp.StatusCode))
		return
	}
	log.Info("chat deleted")
}

// cleanAnswer strips the status marker and everything past the trailing
// delimiter. An empty remainder becomes the fallback text.
func cleanAnswer(raw string) string {
	s, _, _ := strings.Cut(raw, answerDelimiter)
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, answeredMarker))
	if s == "" {
		return FallbackAnswer
	}
	return s
}
