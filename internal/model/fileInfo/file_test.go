package fileInfo_test

import (
	"testing"

	"dataroom-service/internal/apperr"
	"dataroom-service/internal/model/fileInfo"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func validDraft() fileInfo.Draft {
	owner := uuid.New()
	id := uuid.New()
	remote := "R1"
	return fileInfo.Draft{
		ID:             id,
		OwnerID:        owner,
		StorageKey:     fileInfo.StorageKey(owner, id, "pdf"),
		RemoteObjectID: &remote,
		OriginalName:   "A.pdf",
		Extension:      "pdf",
		MimeType:       "application/pdf",
		SizeBytes:      2048,
	}
}

func TestDraftValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validDraft().Validate())
	})

	for _, size := range []int64{0, -1} {
		d := validDraft()
		d.SizeBytes = size
		assert.ErrorIs(t, d.Validate(), apperr.ErrValidation)
	}

	t.Run("empty remote id", func(t *testing.T) {
		d := validDraft()
		empty := ""
		d.RemoteObjectID = &empty
		assert.ErrorIs(t, d.Validate(), apperr.ErrValidation)
	})

	t.Run("missing name", func(t *testing.T) {
		d := validDraft()
		d.OriginalName = ""
		assert.ErrorIs(t, d.Validate(), apperr.ErrValidation)
	})
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "pdf", fileInfo.Extension("Report.PDF", "application/pdf"))
	assert.Equal(t, "png", fileInfo.Extension("no-extension", "image/png"))
	assert.Equal(t, "", fileInfo.Extension("no-extension", ""))
}

func TestStorageKey(t *testing.T) {
	owner := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	id := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	assert.Equal(t, "users/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222.pdf",
		fileInfo.StorageKey(owner, id, "pdf"))
	assert.Equal(t, "users/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222",
		fileInfo.StorageKey(owner, id, ""))
}

func TestValidChecksum(t *testing.T) {
	assert.True(t, fileInfo.ValidChecksum("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"))
	assert.False(t, fileInfo.ValidChecksum("E3B0"))
}
