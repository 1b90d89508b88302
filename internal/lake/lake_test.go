// Copyright 2025 James Ross
package lake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holocron/orchestrator/internal/canon"
)

func fixedLocator() Locator {
	return Locator{
		Kind:         KindRun,
		RunID:        "run-0001",
		ArtifactType: "response_json",
		Date:         time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestPathIngestLayout(t *testing.T) {
	loc := Locator{
		Kind:         KindIngest,
		SourceSystem: "mediawiki",
		SourceName:   "enwiki",
		ResourceType: "page",
		ResourceID:   "12345",
		Date:         time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		Ext:          "json",
	}
	p, err := Path(loc)
	require.NoError(t, err)
	assert.Equal(t, "ingest/mediawiki/enwiki/page/2026/01/02/12345.json", p)
}

func TestPathRunLayout(t *testing.T) {
	p, err := Path(fixedLocator())
	require.NoError(t, err)
	assert.Equal(t, "llm_runs/2026/03/14/run-0001/response_json.json", p)
}

func TestPathRejectsIncompleteLocator(t *testing.T) {
	_, err := Path(Locator{Kind: KindIngest})
	assert.Error(t, err)
	_, err = Path(Locator{Kind: KindRun})
	assert.Error(t, err)
	_, err = Path(Locator{Kind: "bogus"})
	assert.Error(t, err)
}

func TestLocalBackendWriteThenSkip(t *testing.T) {
	ctx := context.Background()
	backend := NewLocalBackend(t.TempDir(), false)

	content := []byte(`{"status":"ok"}`)
	digest, canonical, err := canon.HashValue(map[string]interface{}{"status": "ok"})
	require.NoError(t, err)
	_ = content

	first, err := backend.Write(ctx, fixedLocator(), canonical, digest)
	require.NoError(t, err)
	assert.Equal(t, StatusWritten, first.Status)
	assert.Equal(t, digest, first.ContentSHA256)

	second, err := backend.Write(ctx, fixedLocator(), canonical, digest)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, second.Status)

	readBack, err := backend.Read(ctx, first.LakeURI)
	require.NoError(t, err)
	assert.Equal(t, canonical, readBack)

	exists, err := backend.Exists(ctx, first.LakeURI)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalBackendRewritesOnDigestMismatch(t *testing.T) {
	ctx := context.Background()
	backend := NewLocalBackend(t.TempDir(), false)

	d1, c1, err := canon.HashValue(map[string]interface{}{"v": 1})
	require.NoError(t, err)
	d2, c2, err := canon.HashValue(map[string]interface{}{"v": 2})
	require.NoError(t, err)
	require.NotEqual(t, d1, d2)

	first, err := backend.Write(ctx, fixedLocator(), c1, d1)
	require.NoError(t, err)
	assert.Equal(t, StatusWritten, first.Status)

	second, err := backend.Write(ctx, fixedLocator(), c2, d2)
	require.NoError(t, err)
	assert.Equal(t, StatusWritten, second.Status)

	readBack, err := backend.Read(ctx, second.LakeURI)
	require.NoError(t, err)
	assert.Equal(t, c2, readBack)
}

func TestLocalBackendCompressedRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewLocalBackend(t.TempDir(), true)

	digest, canonical, err := canon.HashValue(map[string]interface{}{"big": "payload"})
	require.NoError(t, err)

	res, err := backend.Write(ctx, fixedLocator(), canonical, digest)
	require.NoError(t, err)
	assert.Equal(t, StatusWritten, res.Status)

	readBack, err := backend.Read(ctx, res.LakeURI)
	require.NoError(t, err)
	assert.Equal(t, canonical, readBack)

	second, err := backend.Write(ctx, fixedLocator(), canonical, digest)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, second.Status)
}
