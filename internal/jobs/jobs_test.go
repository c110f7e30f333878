package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/scenedex-backend/internal/types"
)

type fakeHandler struct{ typ string }

func (f *fakeHandler) Type() string       { return f.typ }
func (f *fakeHandler) Run(*Context) error { return nil }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	h := &fakeHandler{typ: "process_video"}
	if err := r.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := r.Get("process_video")
	if !ok || got != h {
		t.Fatalf("Get returned %v, %v", got, ok)
	}
	if _, ok := r.Get("unknown"); ok {
		t.Fatal("Get of unregistered type should report missing")
	}
}

func TestRegistryRejectsDuplicatesAndEmpty(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeHandler{typ: "x"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(&fakeHandler{typ: "x"}); err == nil {
		t.Fatal("duplicate Register should fail")
	}
	if err := r.Register(&fakeHandler{typ: ""}); err == nil {
		t.Fatal("empty type should fail")
	}
	if err := r.Register(nil); err == nil {
		t.Fatal("nil handler should fail")
	}
}

func TestContextPayloadDecoding(t *testing.T) {
	videoID := uuid.New()
	job := &types.JobRun{
		ID:      uuid.New(),
		Payload: datatypes.JSON([]byte(`{"video_id":"` + videoID.String() + `","note":"x"}`)),
	}
	c := NewContext(context.Background(), nil, job, nil, nil)

	got, ok := c.PayloadUUID("video_id")
	if !ok || got != videoID {
		t.Fatalf("PayloadUUID = %v, %v; want %v, true", got, ok, videoID)
	}
	if _, ok := c.PayloadUUID("missing"); ok {
		t.Fatal("missing key should not parse")
	}
	if _, ok := c.PayloadUUID("note"); ok {
		t.Fatal("non-uuid value should not parse")
	}
}

func TestContextPayloadNeverNil(t *testing.T) {
	c := NewContext(context.Background(), nil, &types.JobRun{ID: uuid.New()}, nil, nil)
	if c.Payload() == nil {
		t.Fatal("Payload() returned nil")
	}
	bad := &types.JobRun{ID: uuid.New(), Payload: datatypes.JSON([]byte(`{broken`))}
	c = NewContext(context.Background(), nil, bad, nil, nil)
	if c.Payload() == nil {
		t.Fatal("Payload() returned nil for malformed payload")
	}
}
