package worker

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menucache/menucache/internal/cache"
	"github.com/menucache/menucache/internal/messaging"
)

func TestInstallWritesEveryBucket(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	store := newTestStore(t)
	ctrl := newTestController(t, store, origin.URL, "v6", siteManifest())

	require.NoError(t, ctrl.Install(context.Background()))
	assert.Equal(t, StateInstalled, ctrl.State())

	names, err := store.Buckets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"documents-v6", "fonts-v6", "images-v6", "static-assets-v6"}, names)

	result, err := store.Get(context.Background(), cache.Locator{Bucket: "images-v6", Path: "/Menu/assets/images/menu/pt/menu_pt-1.webp"})
	require.NoError(t, err)
	defer result.Reader.Close()
	body, _ := io.ReadAll(result.Reader)
	assert.Equal(t, "page-1-webp", string(body))
}

func TestInstallIsAllOrNothing(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	store := newTestStore(t)
	manifest := append(siteManifest(), "/Menu/assets/images/missing.png")
	ctrl := newTestController(t, store, origin.URL, "v6", manifest)

	err := ctrl.Install(context.Background())
	require.ErrorIs(t, err, ErrInstallFailed)
	assert.Equal(t, StateRedundant, ctrl.State())

	names, err := store.Buckets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names, "failed install must not leave cached entries")
}

func TestInstallRejectsSecondRun(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	ctrl := newTestController(t, newTestStore(t), origin.URL, "v6", siteManifest())

	require.NoError(t, ctrl.Install(context.Background()))
	assert.Error(t, ctrl.Install(context.Background()))
}

func TestActivateDeletesOtherVersions(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	store := newTestStore(t)

	old := newTestController(t, store, origin.URL, "v5", siteManifest())
	require.NoError(t, old.Install(context.Background()))
	_, err := old.Activate(context.Background())
	require.NoError(t, err)

	next := newTestController(t, store, origin.URL, "v6", siteManifest())
	require.NoError(t, next.Install(context.Background()))
	deleted, err := next.Activate(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"documents-v5", "fonts-v5", "images-v5", "static-assets-v5"}, deleted)
	assert.Equal(t, StateActivated, next.State())

	names, err := store.Buckets(context.Background())
	require.NoError(t, err)
	for _, name := range names {
		assert.True(t, next.Buckets().Contains(name), "unexpected bucket %s", name)
	}
}

func TestActivateRequiresInstall(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), "http://127.0.0.1:1", "v6", nil)
	_, err := ctrl.Activate(context.Background())
	assert.Error(t, err)
}

func TestInvalidateDeletesBucketsOfListedAssets(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	store := newTestStore(t)
	ctrl := installed(t, store, origin.URL)

	reply, err := ctrl.HandleMessage(context.Background(), messaging.Invalidate("content changed",
		"/Menu/assets/images/menu/pt/menu_pt-1.webp",
		"/Menu/assets/images/logo.png",
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"images-v6"}, reply.Deleted)

	names, err := store.Buckets(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, names, "images-v6")
	assert.Contains(t, names, "documents-v6")
}

func TestInvalidateWithoutAssetsDropsImages(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	store := newTestStore(t)
	ctrl := installed(t, store, origin.URL)

	reply, err := ctrl.HandleMessage(context.Background(), messaging.Invalidate("manual"))
	require.NoError(t, err)
	assert.Equal(t, []string{"images-v6"}, reply.Deleted)

	reply, err = ctrl.HandleMessage(context.Background(), messaging.Invalidate("manual"))
	require.NoError(t, err)
	assert.Empty(t, reply.Deleted, "second invalidation finds nothing to delete")
}

func TestInvalidateSpansResourceTypes(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	store := newTestStore(t)
	ctrl := installed(t, store, origin.URL)

	reply, err := ctrl.HandleMessage(context.Background(), messaging.Invalidate("fonts and styles",
		"/Menu/assets/fonts/Inter.woff2",
		"/Menu/css/style.css",
	))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fonts-v6", "static-assets-v6"}, reply.Deleted)
}

func TestStatusReportsBucketsOnDisk(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	store := newTestStore(t)
	ctrl := installed(t, store, origin.URL)

	reply, err := ctrl.HandleMessage(context.Background(), messaging.Status())
	require.NoError(t, err)
	assert.Equal(t, "v6", reply.Version)
	assert.Equal(t, []string{"documents-v6", "fonts-v6", "images-v6", "static-assets-v6"}, reply.CacheNames)
	assert.NotZero(t, reply.Timestamp)
}

func TestBackgroundCheckIsRelayedToClients(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	ctrl := installed(t, newTestStore(t), origin.URL)

	var received []messaging.Message
	cancel := ctrl.Clients().Subscribe(messaging.ClientFunc(func(msg messaging.Message) {
		received = append(received, msg)
	}))

	_, err := ctrl.HandleMessage(context.Background(), messaging.BackgroundCheckRequested())
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, messaging.TypeBackgroundCheckRequested, received[0].Type)

	cancel()
	_, err = ctrl.HandleMessage(context.Background(), messaging.BackgroundCheckRequested())
	require.NoError(t, err)
	assert.Len(t, received, 1)
}

func TestHandleMessageRejectsUnknownType(t *testing.T) {
	ctrl := newTestController(t, newTestStore(t), "http://127.0.0.1:1", "v6", nil)
	_, err := ctrl.HandleMessage(context.Background(), messaging.Message{Type: "SKIP_WAITING"})
	assert.ErrorIs(t, err, messaging.ErrUnknownType)
}

func TestFetchServesCacheFirst(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	ctrl := installed(t, newTestStore(t), origin.URL)
	app := newFetchApp(ctrl.Fetch)

	origin.set("/Menu/css/style.css", "body{color:red}")
	resp, err := app.Test(httptest.NewRequest("GET", "/Menu/css/style.css?v=2", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "body{}", string(body), "cached copy is served without revalidation")
	assert.Equal(t, "hit", resp.Header.Get(HeaderCache))
	assert.Equal(t, "static-assets-v6", resp.Header.Get(HeaderBucket))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	assert.Equal(t, `"/Menu/css/style.css"`, resp.Header.Get("ETag"), "install keeps origin headers")
}

func TestFetchStoresMissesInTheirBucket(t *testing.T) {
	bodies := copyBodies(siteBodies)
	bodies["/Menu/assets/videos/intro.mp4"] = "video"
	origin := newTestOrigin(t, bodies)
	store := newTestStore(t)
	ctrl := installed(t, store, origin.URL)
	app := newFetchApp(ctrl.Fetch)

	resp, err := app.Test(httptest.NewRequest("GET", "/Menu/assets/videos/intro.mp4", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "video", string(body))
	assert.Equal(t, "miss", resp.Header.Get(HeaderCache))

	resp, err = app.Test(httptest.NewRequest("GET", "/Menu/assets/videos/intro.mp4", nil))
	require.NoError(t, err)
	assert.Equal(t, "hit", resp.Header.Get(HeaderCache))
	assert.Equal(t, "videos-v6", resp.Header.Get(HeaderBucket))
	assert.Equal(t, `"/Menu/assets/videos/intro.mp4"`, resp.Header.Get("ETag"), "origin headers are kept with the entry")
	assert.Equal(t, 1, origin.hitCount("/Menu/assets/videos/intro.mp4"))
}

func TestFetchDoesNotStoreErrors(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	ctrl := installed(t, newTestStore(t), origin.URL)
	app := newFetchApp(ctrl.Fetch)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/Menu/assets/images/nope.webp", nil))
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode)
		assert.Equal(t, "miss", resp.Header.Get(HeaderCache))
	}
	assert.Equal(t, 2, origin.hitCount("/Menu/assets/images/nope.webp"))
}

func TestFetchReturns502WhenOriginUnreachable(t *testing.T) {
	origin := newTestOrigin(t, copyBodies(siteBodies))
	ctrl := installed(t, newTestStore(t), origin.URL)
	origin.Close()
	app := newFetchApp(ctrl.Fetch)

	resp, err := app.Test(httptest.NewRequest("GET", "/Menu/uncached.html", nil))
	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"error":"upstream_failed"}`, string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/Menu/index.html", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode, "cached documents keep working offline")
}

func installed(t *testing.T, store cache.Store, origin string) *Controller {
	t.Helper()
	ctrl := newTestController(t, store, origin, "v6", siteManifest())
	require.NoError(t, ctrl.Install(context.Background()))
	_, err := ctrl.Activate(context.Background())
	require.NoError(t, err)
	return ctrl
}
