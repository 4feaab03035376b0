// internal/handlers/import_test.go
package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockledger/internal/core/ports"
	"github.com/ammerola/stockledger/internal/handlers"
	"github.com/ammerola/stockledger/test/helpers"
	"github.com/ammerola/stockledger/test/mocks"
)

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestImportHandler_ImportProducts(t *testing.T) {
	principal := helpers.TestPrincipal()

	tests := []struct {
		name           string
		filename       string
		content        []byte
		maxSize        int64
		setupMocks     func(*mocks.MockObjectStorage, *mocks.MockTaskEnqueuer)
		expectedStatus int
	}{
		{
			name:     "queues_uploaded_spreadsheet",
			filename: "catalog.xlsx",
			content:  []byte("PK fake workbook"),
			maxSize:  1 << 20,
			setupMocks: func(s *mocks.MockObjectStorage, q *mocks.MockTaskEnqueuer) {
				var storedKey string
				s.EXPECT().
					Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ any, key string, body io.Reader, contentType string) (string, error) {
						assert.True(t, strings.HasPrefix(key, handlers.ImportPrefix+"/"))
						assert.True(t, strings.HasSuffix(key, "-catalog.xlsx"))
						data, err := io.ReadAll(body)
						require.NoError(t, err)
						assert.Equal(t, "PK fake workbook", string(data))
						storedKey = key
						return "s3://bucket/" + key, nil
					})
				q.EXPECT().
					EnqueueImport(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ any, req ports.ImportRequest) (string, error) {
						assert.Equal(t, storedKey, req.ObjectKey)
						assert.Equal(t, "catalog.xlsx", req.Filename)
						assert.Equal(t, principal.UserID.String(), req.RequestedBy)
						return "task-42", nil
					})
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "rejects_other_extensions",
			filename:       "catalog.csv",
			content:        []byte("a,b"),
			maxSize:        1 << 20,
			setupMocks:     func(*mocks.MockObjectStorage, *mocks.MockTaskEnqueuer) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "requires_file",
			maxSize:        1 << 20,
			setupMocks:     func(*mocks.MockObjectStorage, *mocks.MockTaskEnqueuer) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "rejects_oversized_upload",
			filename:       "big.xlsx",
			content:        bytes.Repeat([]byte("x"), 4096),
			maxSize:        1024,
			setupMocks:     func(*mocks.MockObjectStorage, *mocks.MockTaskEnqueuer) {},
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:     "removes_upload_when_enqueue_fails",
			filename: "catalog.xlsx",
			content:  []byte("PK"),
			maxSize:  1 << 20,
			setupMocks: func(s *mocks.MockObjectStorage, q *mocks.MockTaskEnqueuer) {
				s.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", nil)
				q.EXPECT().EnqueueImport(gomock.Any(), gomock.Any()).Return("", errors.New("redis down"))
				s.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil)
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			storage := mocks.NewMockObjectStorage(ctrl)
			tasks := mocks.NewMockTaskEnqueuer(ctrl)
			tt.setupMocks(storage, tasks)

			handler := handlers.NewImportHandler(storage, tasks, helpers.TestLogger(), tt.maxSize)

			body, contentType := multipartUpload(t, tt.filename, tt.content)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/import/products", body)
			req.Header.Set("Content-Type", contentType)
			req = helpers.WithPrincipal(req, principal)
			w := httptest.NewRecorder()

			handler.ImportProducts(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if w.Code == http.StatusAccepted {
				var resp handlers.ImportAccepted
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "task-42", resp.TaskID)
			}
		})
	}
}
