package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/sagarc03/vaultbox"
	"github.com/sagarc03/vaultbox/database"
	"github.com/sagarc03/vaultbox/filesystem"
	vaultboxhttp "github.com/sagarc03/vaultbox/http"
	"github.com/sagarc03/vaultbox/jobs"
)

const (
	testBucket    = "test_bucket"
	testChunkSize = 4
	testMaxSize   = 1024
)

// stack is a full vaultbox wired in process: database, filesystem store, memory
// queue, purge worker and the HTTP router behind httptest.
type stack struct {
	URL     string
	Repo    vaultbox.MetaDataRepo
	Store   *filesystem.Store
	Queue   *jobs.MemoryQueue
	Service *vaultbox.FileService
}

func startStack(t *testing.T, dbCfg database.Config) *stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	db, err := database.Open(ctx, dbCfg)
	require.NoError(t, err, "open database")

	store, err := filesystem.Open(t.TempDir())
	require.NoError(t, err, "open store")
	require.NoError(t, store.EnsureBucket(testBucket))

	queue := jobs.NewMemoryQueue()

	cfg := vaultbox.DefaultServiceConfig()
	cfg.Bucket = testBucket
	cfg.ChunkSize = testChunkSize
	cfg.MaxFileSize = testMaxSize
	cfg.ServeDeleted = true

	service, err := vaultbox.NewFileService(db.GetRepo(), store, jobs.NewClient(queue), cfg)
	require.NoError(t, err, "create service")

	worker := jobs.NewWorker(queue, jobs.WorkerConfig{
		Concurrency: 2,
		MaxAttempts: 3,
		MinBackoff:  time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		PollWait:    10 * time.Millisecond,
	})
	worker.Handle(vaultbox.PurgeJobName, jobs.PurgeHandler(service))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = worker.Run(ctx)
	}()

	handler := vaultboxhttp.NewHandler(&vaultboxhttp.HandlerConfig{Health: db}, service)
	server := httptest.NewServer(handler.Router())

	t.Cleanup(func() {
		server.Close()
		cancel()
		wg.Wait()
		_ = store.Close()
		_ = db.Close()
	})

	return &stack{
		URL:     server.URL,
		Repo:    db.GetRepo(),
		Store:   store,
		Queue:   queue,
		Service: service,
	}
}

func sqliteConfig(t *testing.T) database.Config {
	t.Helper()
	return database.Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "vaultbox.db"),
	}
}

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// postgresConfig returns a config for a container shared by all tests in the package.
func postgresConfig(t *testing.T) database.Config {
	t.Helper()

	pgOnce.Do(func() {
		ctx := context.Background()

		pgContainer, err := pgcontainer.Run(ctx,
			"postgres:18-alpine",
			pgcontainer.WithDatabase("testdb"),
			pgcontainer.WithUsername("testuser"),
			pgcontainer.WithPassword("testpass"),
			pgcontainer.BasicWaitStrategies(),
		)
		if err != nil {
			pgErr = err
			return
		}

		pgDSN, pgErr = pgContainer.ConnectionString(ctx, "sslmode=disable")
		if pgErr != nil {
			_ = testcontainers.TerminateContainer(pgContainer)
		}
	})

	require.NoError(t, pgErr, "start postgres container")
	return database.Config{Type: "postgres", DSN: pgDSN}
}

// upload posts content as the "file" field of a multipart form.
func upload(t *testing.T, baseURL string, owner uuid.UUID, filename, contentType string, content []byte) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(baseURL+"/api/files/?owner_id="+owner.String(), mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return b
}
