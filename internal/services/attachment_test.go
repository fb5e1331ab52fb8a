package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/journeys-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/modules/journeys"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStore) UploadFile(_ context.Context, key, contentType string, body io.Reader) error {
	if m.failErr != nil {
		return m.failErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	m.types[key] = contentType
	return nil
}

func (m *memoryStore) DeleteFile(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) GetPublicURL(key string) string { return "https://files.test/" + key }

type uploadFixture struct {
	*serviceFixture
	store  *memoryStore
	svc    AttachmentService
	userID uuid.UUID
	asgID  uuid.UUID
	seeded *testutil.SeededJourney
}

func newUploadFixture(t *testing.T, config string) *uploadFixture {
	t.Helper()
	f := newServiceFixture(t)
	seeded := testutil.SeedJourney(t, f.ctx, f.db, testutil.JourneyFixture{
		Active: true,
		Chapters: []testutil.ChapterFixture{
			{XPReward: 10, Mandatory: true, Tasks: []testutil.TaskFixture{
				{Mandatory: true, Type: "file_upload", Config: config},
				{Mandatory: true, Type: "checkbox"},
			}},
			{XPReward: 10, Mandatory: true, Tasks: []testutil.TaskFixture{
				{Mandatory: true, Type: "file_upload", Config: config},
			}},
		},
	})
	userID := uuid.New()
	asg := testutil.SeedAssignment(t, f.ctx, f.db, userID, seeded.Journey.ID)
	store := newMemoryStore()
	return &uploadFixture{
		serviceFixture: f,
		store:          store,
		svc:            NewAttachmentService(f.log, store, f.catalog, f.assignments, f.completions, nil, 1<<20),
		userID:         userID,
		asgID:          asg.ID,
		seeded:         seeded,
	}
}

func (u *uploadFixture) upload(taskID uuid.UUID, name string, body []byte) (*uploadResult, error) {
	att, err := u.svc.UploadAttachment(u.ctx, UploadAttachmentInput{
		AssignmentID: u.asgID,
		TaskID:       taskID,
		ActorUserID:  u.userID,
		OriginalName: name,
		Body:         bytes.NewReader(body),
	})
	if err != nil {
		return nil, err
	}
	return &uploadResult{key: att.Filename, name: att.OriginalName, mime: att.MimeType, size: att.SizeBytes, url: att.URL}, nil
}

type uploadResult struct {
	key, name, mime, url string
	size                 int64
}

func rejectionReason(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	require.True(t, domainagg.IsCode(err, domainagg.CodeValidation), "got %v", err)
	var rej *journeys.Rejection
	require.True(t, errors.As(err, &rej), "no rejection in %v", err)
	return rej.Reason
}

func TestUploadAttachment_StoresSniffedFile(t *testing.T) {
	u := newUploadFixture(t, `{"allowed_types":["image/*"],"max_size_mb":1}`)

	res, err := u.upload(u.seeded.Tasks[0][0].ID, `C:\Users\me\screenshot.png`, pngHeader)
	require.NoError(t, err)

	assert.Equal(t, "image/png", res.mime)
	assert.Equal(t, "screenshot.png", res.name)
	assert.Equal(t, int64(len(pngHeader)), res.size)
	assert.True(t, strings.HasPrefix(res.key, "attachments/"+u.asgID.String()+"/"+u.seeded.Tasks[0][0].ID.String()+"/"))
	assert.True(t, strings.HasSuffix(res.key, ".png"))
	assert.Equal(t, "https://files.test/"+res.key, res.url)
	assert.Equal(t, pngHeader, u.store.objects[res.key])
	assert.Equal(t, "image/png", u.store.types[res.key])

	// The returned handle satisfies the task's completion rule.
	rule := journeys.FileUploadRule{AllowedTypes: []string{"image/*"}, MaxSizeMB: 1}
	assert.Nil(t, journeys.Check(rule, map[string]any{"file": map[string]any{
		"filename": res.key, "original_name": res.name, "mime_type": res.mime, "size_bytes": res.size,
	}}))
}

func TestUploadAttachment_Rejections(t *testing.T) {
	u := newUploadFixture(t, `{"allowed_types":["application/pdf"],"max_size_mb":0.001}`)
	taskID := u.seeded.Tasks[0][0].ID

	_, err := u.upload(taskID, "a.png", pngHeader)
	assert.Equal(t, journeys.ReasonInvalidType, rejectionReason(t, err))

	big := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 2048)...)
	_, err = u.upload(taskID, "a.pdf", big)
	assert.Equal(t, journeys.ReasonTooLarge, rejectionReason(t, err))

	_, err = u.upload(taskID, "empty.pdf", nil)
	assert.Equal(t, journeys.ReasonNoAttachment, rejectionReason(t, err))

	assert.Empty(t, u.store.objects)
}

func TestUploadAttachment_GlobalCap(t *testing.T) {
	u := newUploadFixture(t, `{}`)
	u.svc = NewAttachmentService(u.log, u.store, u.catalog, u.assignments, u.completions, nil, 16)

	_, err := u.upload(u.seeded.Tasks[0][0].ID, "big.txt", bytes.Repeat([]byte("a"), 64))
	assert.Equal(t, journeys.ReasonTooLarge, rejectionReason(t, err))
}

func TestUploadAttachment_AccessChecks(t *testing.T) {
	u := newUploadFixture(t, `{}`)

	_, err := u.upload(u.seeded.Tasks[0][1].ID, "a.png", pngHeader)
	assert.True(t, domainagg.IsCode(err, domainagg.CodeValidation), "checkbox task: %v", err)

	_, err = u.upload(u.seeded.Tasks[1][0].ID, "a.png", pngHeader)
	assert.True(t, domainagg.IsCode(err, domainagg.CodeForbidden), "locked chapter: %v", err)
	assert.Contains(t, err.Error(), "complete the previous chapter first")

	_, err = u.upload(uuid.New(), "a.png", pngHeader)
	assert.True(t, domainagg.IsCode(err, domainagg.CodeNotFound), "foreign task: %v", err)

	_, err = u.svc.UploadAttachment(u.ctx, UploadAttachmentInput{
		AssignmentID: u.asgID, TaskID: u.seeded.Tasks[0][0].ID, ActorUserID: uuid.New(), Body: bytes.NewReader(pngHeader),
	})
	assert.True(t, domainagg.IsCode(err, domainagg.CodeForbidden), "other user: %v", err)

	_, err = u.svc.UploadAttachment(u.ctx, UploadAttachmentInput{
		AssignmentID: uuid.New(), TaskID: u.seeded.Tasks[0][0].ID, Body: bytes.NewReader(pngHeader),
	})
	assert.True(t, domainagg.IsCode(err, domainagg.CodeNotFound), "missing assignment: %v", err)
}

func TestUploadAttachment_StoreFailureIsRetryable(t *testing.T) {
	u := newUploadFixture(t, `{}`)
	u.store.failErr = errors.New("bucket offline")

	_, err := u.upload(u.seeded.Tasks[0][0].ID, "a.png", pngHeader)
	assert.True(t, domainagg.IsCode(err, domainagg.CodeRetryable), "got %v", err)
}

func TestUploadAttachment_Disabled(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewAttachmentService(f.log, nil, f.catalog, f.assignments, f.completions, nil, 0)
	_, err := svc.UploadAttachment(f.ctx, UploadAttachmentInput{AssignmentID: uuid.New(), TaskID: uuid.New()})
	assert.True(t, domainagg.IsCode(err, domainagg.CodePreconditionFailed))
	assert.ErrorIs(t, err, ErrAttachmentsDisabled)
}
