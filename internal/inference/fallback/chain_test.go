package fallback

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/leemai/leemai/internal/inference"
	"github.com/leemai/leemai/internal/metrics"
	mock_inference "github.com/leemai/leemai/internal/mocks/inference"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testRequest = inference.GenerateRequest{
	Prompt:       "Question: What is gravity?\n\nAnswer:",
	MaxNewTokens: 400,
	Temperature:  0.7,
	TopP:         0.95,
}

func blockUntilDone(ctx context.Context, _ inference.GenerateRequest) (inference.GenerateResponse, error) {
	<-ctx.Done()
	return inference.GenerateResponse{}, ctx.Err()
}

func TestChain_Generate(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(first, second *mock_inference.MockClient)
		want      inference.GenerateResponse
		wantErr   bool
		wantKinds []inference.ErrorKind
	}{
		{
			name: "first candidate answers",
			setup: func(first, second *mock_inference.MockClient) {
				first.EXPECT().Generate(gomock.Any(), testRequest).
					Return(inference.GenerateResponse{Text: "Gravity pulls things down.", Model: "first-model"}, nil)
			},
			want: inference.GenerateResponse{Text: "Gravity pulls things down.", Model: "first-model"},
		},
		{
			name: "second candidate answers after a status error",
			setup: func(first, second *mock_inference.MockClient) {
				gomock.InOrder(
					first.EXPECT().Generate(gomock.Any(), testRequest).
						Return(inference.GenerateResponse{}, &inference.Error{Kind: inference.ErrorKindStatus, Model: "first-model", StatusCode: http.StatusInternalServerError}),
					second.EXPECT().Generate(gomock.Any(), testRequest).
						Return(inference.GenerateResponse{Text: "Gravity is a force."}, nil),
				)
			},
			want: inference.GenerateResponse{Text: "Gravity is a force.", Model: "second-model"},
		},
		{
			name: "empty output moves to the next candidate",
			setup: func(first, second *mock_inference.MockClient) {
				gomock.InOrder(
					first.EXPECT().Generate(gomock.Any(), testRequest).
						Return(inference.GenerateResponse{Text: "  \n", Model: "first-model"}, nil),
					second.EXPECT().Generate(gomock.Any(), testRequest).
						Return(inference.GenerateResponse{Text: "Mass attracts mass.", Model: "second-model"}, nil),
				)
			},
			want: inference.GenerateResponse{Text: "Mass attracts mass.", Model: "second-model"},
		},
		{
			name: "every candidate fails",
			setup: func(first, second *mock_inference.MockClient) {
				first.EXPECT().Generate(gomock.Any(), testRequest).
					Return(inference.GenerateResponse{}, &inference.Error{Kind: inference.ErrorKindLoading, Model: "first-model"})
				second.EXPECT().Generate(gomock.Any(), testRequest).
					Return(inference.GenerateResponse{}, errors.New("connection reset"))
			},
			wantErr:   true,
			wantKinds: []inference.ErrorKind{inference.ErrorKindLoading, inference.ErrorKindUnknown},
		},
		{
			name: "every candidate times out",
			setup: func(first, second *mock_inference.MockClient) {
				first.EXPECT().Generate(gomock.Any(), testRequest).DoAndReturn(blockUntilDone)
				second.EXPECT().Generate(gomock.Any(), testRequest).DoAndReturn(blockUntilDone)
			},
			wantErr:   true,
			wantKinds: []inference.ErrorKind{inference.ErrorKindTimeout, inference.ErrorKindTimeout},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			first := mock_inference.NewMockClient(ctrl)
			second := mock_inference.NewMockClient(ctrl)
			tt.setup(first, second)

			chain := NewChain([]Candidate{
				{Name: "first", Model: "first-model", Timeout: 50 * time.Millisecond, Client: first},
				{Name: "second", Model: "second-model", Timeout: 50 * time.Millisecond, Client: second},
			}, metrics.New())

			got, err := chain.Generate(context.Background(), testRequest)
			if tt.wantErr {
				require.Error(t, err)
				var exhausted *ExhaustedError
				require.ErrorAs(t, err, &exhausted)
				require.Len(t, exhausted.Attempts, len(tt.wantKinds))
				for i, wantKind := range tt.wantKinds {
					assert.Equal(t, wantKind, inference.ErrorKindOf(exhausted.Attempts[i].Err))
				}
				assert.Equal(t, "first", exhausted.Attempts[0].Candidate)
				assert.Equal(t, "second", exhausted.Attempts[1].Candidate)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChain_Generate_RecordsAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mock_inference.NewMockClient(ctrl)
	second := mock_inference.NewMockClient(ctrl)
	first.EXPECT().Generate(gomock.Any(), gomock.Any()).
		Return(inference.GenerateResponse{}, &inference.Error{Kind: inference.ErrorKindLoading, Model: "first-model"})
	second.EXPECT().Generate(gomock.Any(), gomock.Any()).
		Return(inference.GenerateResponse{Text: "ok"}, nil)

	m := metrics.New()
	chain := NewChain([]Candidate{
		{Name: "first", Model: "first-model", Client: first},
		{Name: "second", Model: "second-model", Client: second},
	}, m)

	_, err := chain.Generate(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamAttemptsTotal.WithLabelValues("first", "loading")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamAttemptsTotal.WithLabelValues("second", "success")))
}

func TestChain_Generate_CallerCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mock_inference.NewMockClient(ctrl)
	second := mock_inference.NewMockClient(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	first.EXPECT().Generate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ inference.GenerateRequest) (inference.GenerateResponse, error) {
			cancel()
			return inference.GenerateResponse{}, ctx.Err()
		})
	second.EXPECT().Generate(gomock.Any(), gomock.Any()).Times(0)

	chain := NewChain([]Candidate{
		{Name: "first", Model: "first-model", Timeout: time.Second, Client: first},
		{Name: "second", Model: "second-model", Timeout: time.Second, Client: second},
	}, nil)

	_, err := chain.Generate(ctx, testRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestChain_Generate_NoCandidates(t *testing.T) {
	chain := NewChain(nil, nil)
	_, err := chain.Generate(context.Background(), testRequest)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Empty(t, exhausted.Attempts)
	assert.False(t, exhausted.AllLoading())
}

func TestChain_Candidates(t *testing.T) {
	candidates := []Candidate{{Name: "a", Model: "m1"}, {Model: "m2"}}
	chain := NewChain(candidates, nil)

	got := chain.Candidates()
	assert.Equal(t, candidates, got)
	got[0].Name = "changed"
	assert.Equal(t, "a", chain.Candidates()[0].Name)
}

func TestExhaustedError(t *testing.T) {
	loading := &inference.Error{Kind: inference.ErrorKindLoading, Model: "m"}
	timeout := &inference.Error{Kind: inference.ErrorKindTimeout, Model: "m"}

	tests := []struct {
		name           string
		err            *ExhaustedError
		wantAllLoading bool
		wantMessage    string
	}{
		{
			name:           "all loading",
			err:            &ExhaustedError{Attempts: []AttemptError{{Candidate: "a", Err: loading}, {Candidate: "b", Err: loading}}},
			wantAllLoading: true,
			wantMessage:    "all 2 candidate models failed: a: loading error from m; b: loading error from m",
		},
		{
			name:           "mixed",
			err:            &ExhaustedError{Attempts: []AttemptError{{Candidate: "a", Err: loading}, {Candidate: "b", Err: timeout}}},
			wantAllLoading: false,
			wantMessage:    "all 2 candidate models failed: a: loading error from m; b: timeout error from m",
		},
		{
			name:           "nothing attempted",
			err:            &ExhaustedError{},
			wantAllLoading: false,
			wantMessage:    "no candidate models configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAllLoading, tt.err.AllLoading())
			assert.Equal(t, tt.wantMessage, tt.err.Error())
		})
	}

	err := &ExhaustedError{Attempts: []AttemptError{{Candidate: "a", Err: timeout}}}
	var inferenceErr *inference.Error
	require.ErrorAs(t, err, &inferenceErr)
	assert.Same(t, timeout, inferenceErr)
}
