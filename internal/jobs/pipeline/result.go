package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/yungbote/scenedex-backend/internal/inference/client"
)

// Error classes shared with the HTTP layer.
const (
	ErrClassInvalidInput        = "invalid_input"
	ErrClassInvalidMedia        = "invalid_media"
	ErrClassMediaDecode         = "media_decode"
	ErrClassNotFound            = "not_found"
	ErrClassConflict            = "conflict"
	ErrClassTransientDependency = "transient_dependency"
	ErrClassFatalMedia          = "fatal_media"
	ErrClassSoftDegrade         = "soft_degrade"
	ErrClassInternal            = "internal"
)

type StageKind int

const (
	StageOk StageKind = iota
	StageSoftDegrade
	StageFatal
	StageTransient
)

// StageResult is the tagged outcome of one pipeline stage. Stages signal
// degradation or failure through values, not panics.
type StageResult struct {
	Kind   StageKind
	Class  string
	Reason string
}

func Ok() StageResult { return StageResult{Kind: StageOk} }

func SoftDegrade(reason string) StageResult {
	return StageResult{Kind: StageSoftDegrade, Class: ErrClassSoftDegrade, Reason: reason}
}

func Fatal(class, reason string) StageResult {
	return StageResult{Kind: StageFatal, Class: class, Reason: reason}
}

func Transient(reason string) StageResult {
	return StageResult{Kind: StageTransient, Class: ErrClassTransientDependency, Reason: reason}
}

// FatalMediaError marks probe/decode/limit failures that must fail the video.
type FatalMediaError struct {
	Class  string
	Reason string
}

func (e *FatalMediaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Reason)
}

// Classify buckets an arbitrary stage error into the retry taxonomy:
// fatal media errors never retry, dependency transport failures and 5xx
// responses retry, everything else is internal (retried as transient once
// by the outer task-bus backstop, not at stage level).
func Classify(err error) StageKind {
	if err == nil {
		return StageOk
	}
	var fm *FatalMediaError
	if errors.As(err, &fm) {
		return StageFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StageTransient
	}
	var herr *client.HTTPError
	if errors.As(err, &herr) {
		if herr.StatusCode >= 500 || herr.StatusCode == 429 {
			return StageTransient
		}
		return StageFatal
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return StageTransient
	}
	return StageFatal
}

type stagePolicy struct {
	name       string
	soft       bool
	maxRetries int
}

// runStage executes fn with bounded retries on transient errors. Exhausted
// retries become SoftDegrade for soft stages and Fatal otherwise.
func runStage(ctx context.Context, policy stagePolicy, fn func(ctx context.Context) error) StageResult {
	maxRetries := policy.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return Transient(ctx.Err().Error())
		}
		err := fn(ctx)
		if err == nil {
			return Ok()
		}
		lastErr = err
		kind := Classify(err)
		if kind == StageFatal {
			break
		}
		if attempt < maxRetries {
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-ctx.Done():
				return Transient(ctx.Err().Error())
			case <-time.After(backoff + jitter):
			}
			backoff *= 2
		}
	}

	if policy.soft {
		return SoftDegrade(fmt.Sprintf("%s failed: %v", policy.name, lastErr))
	}
	var fm *FatalMediaError
	if errors.As(lastErr, &fm) {
		return Fatal(fm.Class, fm.Reason)
	}
	if Classify(lastErr) == StageTransient {
		return Transient(fmt.Sprintf("%s failed: %v", policy.name, lastErr))
	}
	return Fatal(ErrClassInternal, fmt.Sprintf("%s failed: %v", policy.name, lastErr))
}
