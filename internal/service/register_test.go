package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docregistry/internal/hasher"
	"docregistry/internal/model"
	"docregistry/internal/registry"
	regMocks "docregistry/internal/registry/mocks"
	repoMocks "docregistry/internal/repository/mocks"
	"docregistry/internal/storage"
	storeMocks "docregistry/internal/storage/mocks"
)

type fixture struct {
	svc     *documentService
	reg     *regMocks.MockRegistry
	store   *storeMocks.MockStorage
	journal *repoMocks.MockRegistrationRepository
	metrics *Metrics
}

func newFixture(t *testing.T, maxSize int64) *fixture {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &fixture{
		reg:     new(regMocks.MockRegistry),
		store:   new(storeMocks.MockStorage),
		journal: new(repoMocks.MockRegistrationRepository),
		metrics: m,
	}
	f.svc = NewDocumentService(Options{
		Registry:        f.reg,
		Store:           f.store,
		Journal:         f.journal,
		Metrics:         m,
		MaxFileSize:     maxSize,
		ConfirmTimeout:  time.Second,
		ListParallelism: 4,
	}).(*documentService)
	return f
}

func (f *fixture) outcomes(label string) float64 {
	return testutil.ToFloat64(f.metrics.registrations.WithLabelValues(label))
}

var (
	pdfBody   = []byte("%PDF-1.7 contract")
	pdfDigest = hasher.Sum(pdfBody)
	pending   = registry.Pending{TxHash: "0xfeed", DocHash: pdfDigest, Nonce: 3}
)

func storedInfo(key string) storage.ObjectInfo {
	return storage.ObjectInfo{Key: key, URL: "https://cdn.example.com/" + key, Size: int64(len(pdfBody)), ContentType: "application/pdf"}
}

// expectUpload wires the happy path up to a successful submit.
func (f *fixture) expectUpload() {
	f.reg.On("ExistsByHash", mock.Anything, pdfDigest).Return(false, nil).Once()
	f.store.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "documents/"+pdfDigest.Hex()+"/") && strings.HasSuffix(key, ".pdf")
	}), mock.Anything, int64(len(pdfBody)), storage.PutObjectOptions{
		ContentType: "application/pdf",
		Metadata:    map[string]string{"original-filename": "contract.pdf", "doc-hash": pdfDigest.Hex()},
	}).Return(func(_ context.Context, key string, _ io.Reader, _ int64, _ storage.PutObjectOptions) storage.ObjectInfo {
		return storedInfo(key)
	}, nil)
	f.journal.On("Create", mock.Anything, mock.MatchedBy(func(r *model.Registration) bool {
		return r.DocHash == pdfDigest.Hex() && r.State == model.RegistrationBlobStored && r.AttemptID != ""
	})).Return(nil)
}

func TestRegister_HappyPath(t *testing.T) {
	f := newFixture(t, 1024)
	f.expectUpload()
	f.reg.On("Submit", mock.Anything, pdfDigest).Return(pending, nil)
	f.journal.On("MarkSubmitted", mock.Anything, mock.Anything, "0xfeed").Return(nil)
	f.reg.On("Confirm", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), pending).Return(registry.Confirmation{ID: 5, CreatedAtMillis: 1700000000000, TxHash: "0xfeed", BlockNumber: 10}, nil)
	f.journal.On("MarkConfirmed", mock.Anything, mock.Anything, "5", int64(1700000000000)).Return(nil)

	rec, err := f.svc.Register(context.Background(), bytes.NewReader(pdfBody), "contract.pdf", "application/pdf", int64(len(pdfBody)))

	require.NoError(t, err)
	assert.Equal(t, "5", rec.ID)
	assert.Equal(t, pdfDigest.Hex(), rec.DocHash)
	assert.Equal(t, int64(1700000000000), rec.CreatedAt)
	assert.Equal(t, "0xfeed", rec.TxHash)
	assert.True(t, strings.HasPrefix(rec.BlobURL, "https://cdn.example.com/documents/"))
	assert.Equal(t, "contract.pdf", rec.FileName)
	assert.Equal(t, int64(len(pdfBody)), rec.FileSize)
	assert.Equal(t, "application/pdf", rec.MimeType)
	assert.Equal(t, 1.0, f.outcomes("registered"))

	f.reg.AssertExpectations(t)
	f.store.AssertExpectations(t)
	f.journal.AssertExpectations(t)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name        string
		r           io.Reader
		contentType string
		size        int64
	}{
		{name: "absent file", r: nil, contentType: "application/pdf", size: -1},
		{name: "disallowed type", r: strings.NewReader("abc"), contentType: "text/plain", size: 3},
		{name: "empty file", r: strings.NewReader(""), contentType: "application/pdf", size: 0},
		{name: "empty body unknown size", r: strings.NewReader(""), contentType: "application/pdf", size: -1},
		{name: "declared too large", r: strings.NewReader("x"), contentType: "image/png", size: 9},
		{name: "one byte over", r: strings.NewReader("123456789"), contentType: "image/png", size: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 8)

			_, err := f.svc.Register(context.Background(), tt.r, "f.png", tt.contentType, tt.size)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			var abort *AbortError
			require.ErrorAs(t, err, &abort)
			assert.Equal(t, StateValidating, abort.State)
			f.reg.AssertNotCalled(t, "ExistsByHash", mock.Anything, mock.Anything)
			f.store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_ExactlyMaxSizeAccepted(t *testing.T) {
	f := newFixture(t, int64(len(pdfBody)))
	f.expectUpload()
	f.reg.On("Submit", mock.Anything, pdfDigest).Return(pending, nil)
	f.journal.On("MarkSubmitted", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.reg.On("Confirm", mock.Anything, pending).Return(registry.Confirmation{ID: 1, CreatedAtMillis: 1000, TxHash: "0xfeed"}, nil)
	f.journal.On("MarkConfirmed", mock.Anything, mock.Anything, "1", int64(1000)).Return(nil)

	_, err := f.svc.Register(context.Background(), bytes.NewReader(pdfBody), "contract.pdf", "Application/PDF; charset=binary", -1)

	assert.NoError(t, err)
}

func TestRegister_DuplicateBeforeUpload(t *testing.T) {
	f := newFixture(t, 1024)
	f.reg.On("ExistsByHash", mock.Anything, pdfDigest).Return(true, nil)

	_, err := f.svc.Register(context.Background(), bytes.NewReader(pdfBody), "contract.pdf", "application/pdf", -1)

	assert.ErrorIs(t, err, ErrDuplicate)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, StateHashComputed, abort.State)
	assert.Equal(t, pdfDigest.Hex(), abort.DocHash)
	f.store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.reg.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	assert.Equal(t, 1.0, f.outcomes("duplicate"))
}

func TestRegister_DuplicateCheckUnavailable(t *testing.T) {
	f := newFixture(t, 1024)
	f.reg.On("ExistsByHash", mock.Anything, pdfDigest).Return(false, registry.ErrUnavailable)

	_, err := f.svc.Register(context.Background(), bytes.NewReader(pdfBody), "contract.pdf", "application/pdf", -1)

	assert.ErrorIs(t, err, ErrRegistryUnavailable)
	assert.ErrorIs(t, err, registry.ErrUnavailable)
}

func TestRegister_StorageFailure(t *testing.T) {
	f := newFixture(t, 1024)
	f.reg.On("ExistsByHash", mock.Anything, pdfDigest).Return(false, nil)
	f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, storage.ErrUnavailable)

	_, err := f.svc.Register(context.Background(), bytes.NewReader(pdfBody), "contract.pdf", "application/pdf", -1)

	assert.ErrorIs(t, err, ErrStorageFailure)
	f.reg.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	f.journal.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_SubmitRevertedByRaceIsDuplicate(t *testing.T) {
	f := newFixture(t, 1024)
	f.expectUpload()
	f.reg.On("Submit", mock.Anything, pdfDigest).Return(registry.Pending{}, errors.Join(registry.ErrRejected, errors.New("execution reverted")))
	f.reg.On("ExistsByHash", mock.Anything, pdfDigest).Return(true, nil).Once()
	f.journal.On("MarkAborted", mock.Anything, mock.Anything, model.RegistrationAborted, "DUPLICATE").Return(nil)

	_, err := f.svc.Register(context.Background(), bytes.NewReader(pdfBody), "contract.pdf", "application/pdf", -1)

	assert.ErrorIs(t, err, ErrDuplicate)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, StateBlobStored, abort.State)
	f.reg.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)
	f.journal.AssertExpectations(t)
}

func TestRegister_SubmitUnavailable(t *testing.T) {
	f := newFixture(t, 1024)
	f.expectUpload()
	f.reg.On("Submit", mock.Anything, pdfDigest).Return(registry.Pending{}, registry.ErrUnavailable)
	f.journal.On("MarkAborted", mock.Anything, mock.Anything, model.RegistrationAborted, "REGISTRY_UNAVAILABLE").Return(nil)

	_, err := f.svc.Register(context.Background(), bytes.NewReader(pdfBody), "contract.pdf", "application/pdf", -1)

	assert.ErrorIs(t, err, ErrRegistryUnavailable)
	f.journal.AssertExpectations(t)
}

func TestRegister_ConfirmTimeoutIsIndeterminate(t *testing.T) {
	f := newFixture(t, 1024)
	f.expectUpload()
	f.reg.On("Submit", mock.Anything, pdfDigest).Return(pending, nil)
	f.journal.On("MarkSubmitted", mock.Anything, mock.Anything, "0xfeed").Return(nil)
	f.reg.On("Confirm", mock.Anything, pending).Return(registry.Confirmation{}, registry.ErrIndeterminate)
	f.journal.On("MarkAborted", mock.Anything, mock.Anything, model.RegistrationIndeterminate, "CONFIRMATION_INDETERMINATE").Return(nil)

	_, err := f.svc.Register(context.Background(), bytes.NewReader(pdfBody), "contract.pdf", "application/pdf", -1)

	assert.ErrorIs(t, err, ErrConfirmationIndeterminate)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, StateSubmitted, abort.State)
	assert.Equal(t, "0xfeed", abort.TxHash)
	assert.Equal(t, 1.0, f.outcomes("confirmation_indeterminate"))
	f.journal.AssertExpectations(t)
}

func TestRegister_ConfirmReverted(t *testing.T) {
	f := newFixture(t, 1024)
	f.expectUpload()
	f.reg.On("Submit", mock.Anything, pdfDigest).Return(pending, nil)
	f.journal.On("MarkSubmitted", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.reg.On("Confirm", mock.Anything, pending).Return(registry.Confirmation{}, registry.ErrRejected)
	f.reg.On("ExistsByHash", mock.Anything, pdfDigest).Return(false, nil).Once()
	f.journal.On("MarkAborted", mock.Anything, mock.Anything, model.RegistrationAborted, "REGISTRY_REJECTED").Return(nil)

	_, err := f.svc.Register(context.Background(), bytes.NewReader(pdfBody), "contract.pdf", "application/pdf", -1)

	assert.ErrorIs(t, err, ErrRegistryRejected)
}

func TestRegister_ClientCancelDoesNotCutConfirmation(t *testing.T) {
	f := newFixture(t, 1024)
	f.expectUpload()
	f.reg.On("Submit", mock.Anything, pdfDigest).Return(pending, nil)
	f.journal.On("MarkSubmitted", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	f.reg.On("Confirm", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), pending).
		Run(func(mock.Arguments) { cancel() }).
		Return(registry.Confirmation{ID: 2, CreatedAtMillis: 2000, TxHash: "0xfeed"}, nil)
	f.journal.On("MarkConfirmed", mock.Anything, mock.Anything, "2", int64(2000)).Return(nil)

	rec, err := f.svc.Register(ctx, bytes.NewReader(pdfBody), "contract.pdf", "application/pdf", -1)

	require.NoError(t, err)
	assert.Equal(t, "2", rec.ID)
}

func TestRegister_JournalFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t, 1024)
	f.reg.On("ExistsByHash", mock.Anything, pdfDigest).Return(false, nil)
	f.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storedInfo("documents/x.pdf"), nil)
	f.journal.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))
	f.reg.On("Submit", mock.Anything, pdfDigest).Return(pending, nil)
	f.reg.On("Confirm", mock.Anything, pending).Return(registry.Confirmation{ID: 9, CreatedAtMillis: 9000, TxHash: "0xfeed"}, nil)

	rec, err := f.svc.Register(context.Background(), bytes.NewReader(pdfBody), "contract.pdf", "application/pdf", -1)

	require.NoError(t, err)
	assert.Equal(t, "9", rec.ID)
	f.journal.AssertNotCalled(t, "MarkSubmitted", mock.Anything, mock.Anything, mock.Anything)
	f.journal.AssertNotCalled(t, "MarkConfirmed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestRegister_ReadFailureIsNotInvalidInput(t *testing.T) {
	f := newFixture(t, 1024)

	_, err := f.svc.Register(context.Background(), failingReader{}, "a.pdf", "application/pdf", -1)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "INTERNAL_ERROR", Code(err))
}

func TestBlobKey(t *testing.T) {
	d := hasher.Sum([]byte("x"))

	k := blobKey(d, `C:\Users\me\Scan.PNG`)
	assert.True(t, strings.HasPrefix(k, "documents/"+d.Hex()+"/"))
	assert.True(t, strings.HasSuffix(k, ".png"))

	assert.NotEqual(t, blobKey(d, "a.pdf"), blobKey(d, "a.pdf"))
	assert.NotContains(t, blobKey(d, "noext"), ".")
}
