package describe

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Result
	}{
		{
			name:    "well formed reply",
			content: "Description: A layered paper collage of city rooftops. Tags: collage, paper, city, rooftops, texture",
			want: Result{
				Description: "A layered paper collage of city rooftops.",
				Tags:        []string{"collage", "paper", "city", "rooftops", "texture"},
			},
		},
		{
			name:    "bracketed format echoed back",
			content: "Description: [torn magazine scraps] Tags: [scraps, magazine]",
			want: Result{
				Description: "torn magazine scraps",
				Tags:        []string{"scraps", "magazine"},
			},
		},
		{
			name:    "no tags section",
			content: "Description: just a description",
			want:    Result{Description: "just a description"},
		},
		{
			name:    "free text without labels",
			content: "an unlabeled blob of prose",
			want:    Result{Description: "an unlabeled blob of prose"},
		},
		{
			name:    "empty tags list",
			content: "Description: something Tags: ",
			want:    Result{Description: "something"},
		},
		{
			name:    "empty reply",
			content: "",
			want:    Result{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseResponse(tt.content)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("parseResponse(%q) = %+v, want %+v", tt.content, got, tt.want)
			}
		})
	}
}

func TestResultEmpty(t *testing.T) {
	if !(Result{}).Empty() {
		t.Fatal("zero result should be empty")
	}
	if (Result{Description: "x"}).Empty() {
		t.Fatal("result with description should not be empty")
	}
	if (Result{Tags: []string{"a"}}).Empty() {
		t.Fatal("result with tags should not be empty")
	}
}

type stubProvider struct {
	name   string
	result Result
	err    error
	calls  int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Describe(ctx context.Context, _ []byte) (Result, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return s.result, s.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("first provider wins", func(t *testing.T) {
		first := &stubProvider{name: "first", result: Result{Description: "from first"}}
		second := &stubProvider{name: "second", result: Result{Description: "from second"}}

		res, err := NewChain(time.Second, first, second).Describe(ctx, nil)
		if err != nil {
			t.Fatalf("describe: %v", err)
		}
		if res.Description != "from first" {
			t.Fatalf("unexpected result: %+v", res)
		}
		if second.calls != 0 {
			t.Fatal("second provider should not have been called")
		}
	})

	t.Run("falls through on error", func(t *testing.T) {
		first := &stubProvider{name: "first", err: errors.New("quota exceeded")}
		second := &stubProvider{name: "second", result: Result{Description: "fallback"}}

		res, err := NewChain(time.Second, first, second).Describe(ctx, nil)
		if err != nil {
			t.Fatalf("describe: %v", err)
		}
		if res.Description != "fallback" {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("falls through on empty result", func(t *testing.T) {
		first := &stubProvider{name: "first"}
		second := &stubProvider{name: "second", result: Result{Tags: []string{"t"}}}

		res, err := NewChain(time.Second, first, second).Describe(ctx, nil)
		if err != nil {
			t.Fatalf("describe: %v", err)
		}
		if len(res.Tags) != 1 {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("all providers fail", func(t *testing.T) {
		boom := errors.New("boom")
		first := &stubProvider{name: "first", err: boom}
		second := &stubProvider{name: "second", err: boom}

		res, err := NewChain(time.Second, first, second).Describe(ctx, nil)
		if err == nil {
			t.Fatal("expected joined error")
		}
		if !errors.Is(err, boom) {
			t.Fatalf("joined error should wrap provider errors, got %v", err)
		}
		if !res.Empty() {
			t.Fatalf("expected empty result, got %+v", res)
		}
	})

	t.Run("no providers is a silent no-op", func(t *testing.T) {
		res, err := NewChain(time.Second).Describe(ctx, nil)
		if err != nil {
			t.Fatalf("describe: %v", err)
		}
		if !res.Empty() {
			t.Fatalf("expected empty result, got %+v", res)
		}
	})

	t.Run("stops once the budget is spent", func(t *testing.T) {
		slow := &stubProvider{name: "slow", err: context.DeadlineExceeded}
		never := &stubProvider{name: "never", result: Result{Description: "too late"}}

		expired, cancel := context.WithTimeout(ctx, time.Nanosecond)
		defer cancel()
		time.Sleep(time.Millisecond)

		_, err := NewChain(0, slow, never).Describe(expired, nil)
		if err == nil {
			t.Fatal("expected deadline error")
		}
		if never.calls != 0 {
			t.Fatal("chain should stop once the context is done")
		}
	})
}
