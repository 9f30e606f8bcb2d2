package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docregistry/internal/hasher"
	"docregistry/internal/model"
	"docregistry/internal/registry"
	regMocks "docregistry/internal/registry/mocks"
	"docregistry/internal/service"
	serviceMocks "docregistry/internal/service/mocks"
)

func execute(t *testing.T, a *cliApp, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name string, body []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, body, 0o600))
	return p
}

func TestHashCmd_NeedsNoBackend(t *testing.T) {
	opened := false
	a := &cliApp{open: func(context.Context) error {
		opened = true
		return errors.New("should not dial")
	}}
	p := writeTemp(t, "a.pdf", []byte("hello"))

	out, err := execute(t, a, "hash", p)

	require.NoError(t, err)
	assert.False(t, opened)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	d := hasher.Sum([]byte("hello"))
	assert.Equal(t, d.Hex(), got["hash"])
	assert.Equal(t, d.Bytes32Hex(), got["bytes32"])
	assert.Equal(t, float64(5), got["size"])
}

func TestBackendOpenFailure(t *testing.T) {
	a := &cliApp{open: func(context.Context) error { return errors.New("dial failed") }}

	_, err := execute(t, a, "get", "1")

	assert.ErrorContains(t, err, "dial failed")
}

func TestGetCmd(t *testing.T) {
	svc := new(serviceMocks.MockDocumentService)
	a := &cliApp{svc: svc}
	svc.On("Get", mock.Anything, "4").Return(&model.DocumentRecord{ID: "4", DocHash: "ab", CreatedAt: 10}, nil).Once()

	out, err := execute(t, a, "get", "4")

	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"4","docHash":"ab","createdAt":10}`, out)
}

func TestGetCmd_NotFound(t *testing.T) {
	svc := new(serviceMocks.MockDocumentService)
	a := &cliApp{svc: svc}
	svc.On("Get", mock.Anything, "9").Return(nil, service.ErrNotFound)

	_, err := execute(t, a, "get", "9")

	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestListCmd(t *testing.T) {
	svc := new(serviceMocks.MockDocumentService)
	a := &cliApp{svc: svc}
	svc.On("List", mock.Anything, 2, 10).Return(&model.DocumentPage{
		Items:      []model.DocumentSummary{{ID: "11", DocHash: "cd", CreatedAt: 1}},
		Pagination: model.Pagination{Page: 2, Limit: 10, Total: 11, TotalPages: 2, HasPrev: true},
	}, nil)

	out, err := execute(t, a, "list", "--page", "2", "--limit", "10")

	require.NoError(t, err)
	var got model.DocumentPage
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "11", got.Items[0].ID)
	assert.Equal(t, uint64(2), got.Pagination.TotalPages)
}

func TestVerifyCmd_DetectsType(t *testing.T) {
	svc := new(serviceMocks.MockDocumentService)
	a := &cliApp{svc: svc}
	p := writeTemp(t, "scan.png", []byte("\x89PNG\r\n\x1a\nrest"))
	svc.On("Verify", mock.Anything, mock.Anything, "image/png", int64(12)).
		Return(&model.VerificationResult{IsValid: false, Hash: "ff"}, nil)

	out, err := execute(t, a, "verify", p)

	require.NoError(t, err)
	assert.JSONEq(t, `{"isValid":false,"hash":"ff"}`, out)
}

func TestVerifyCmd_ExplicitType(t *testing.T) {
	svc := new(serviceMocks.MockDocumentService)
	a := &cliApp{svc: svc}
	p := writeTemp(t, "noext", []byte("%PDF-1.7"))
	svc.On("Verify", mock.Anything, mock.Anything, "application/pdf", int64(8)).
		Return(&model.VerificationResult{IsValid: true, DocumentID: "1", RegisteredAt: 5, Hash: "aa"}, nil)

	_, err := execute(t, a, "verify", "--type", "application/pdf", p)

	require.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestTotalCmd(t *testing.T) {
	reg := new(regMocks.MockRegistry)
	a := &cliApp{svc: new(serviceMocks.MockDocumentService), registry: reg}
	reg.On("TotalCount", mock.Anything).Return(uint64(42), nil).Once()

	out, err := execute(t, a, "total")

	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"42"}`, out)

	reg.On("TotalCount", mock.Anything).Return(uint64(0), registry.ErrUnavailable).Once()
	_, err = execute(t, a, "total")
	assert.ErrorIs(t, err, registry.ErrUnavailable)
}

func TestDetectContentType_Sniffs(t *testing.T) {
	f, err := os.Open(writeTemp(t, "blob", []byte("%PDF-1.4 body")))
	require.NoError(t, err)
	defer f.Close()

	ct, err := detectContentType("blob", f)

	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)
	pos, err := f.Seek(0, 1)
	require.NoError(t, err)
	assert.Zero(t, pos)
}
