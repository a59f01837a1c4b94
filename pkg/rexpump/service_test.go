package rexpump

import (
	"bytes"
	"context"
	"encoding/hex"
	stdimage "image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
	"github.com/rexpump/mediad/pkg/evm"
	"github.com/rexpump/mediad/pkg/image"
	"github.com/rexpump/mediad/pkg/store/blob"
	"github.com/rexpump/mediad/pkg/store/kv"
	"github.com/rexpump/mediad/pkg/token"
	"github.com/rexpump/mediad/pkg/upload"
)

const testToken = "0x00000000000000000000000000000000000000c0"

type stubVerifier struct {
	creator string
	err     error
}

func (s *stubVerifier) CreatorOf(context.Context, uint64, string) (string, error) {
	return s.creator, s.err
}

type fixture struct {
	svc      *Service
	engine   *upload.Engine
	kv       *kv.Store
	verifier *stubVerifier
	cfg      *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.DataDir = t.TempDir()
	cfg.RexPump.Enabled = true
	cfg.RexPump.SignatureMaxAgeSeconds = 300
	cfg.RexPump.UpdateCooldownSeconds = 3600
	cfg.RexPump.Networks = map[string]config.NetworkConfig{
		"testnet": {ChainID: 1, RPCURL: "http://127.0.0.1:1/unused"},
	}

	kvStore, err := kv.Open(filepath.Join(cfg.Storage.DataDir, "kv"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })

	blobs, err := blob.New(cfg.OriginalsPath(), cfg.OptimizedPath(), cfg.TempPath(), cfg.Storage.DirectoryLevels)
	require.NoError(t, err)

	engine := upload.NewEngine(kvStore, blobs, image.NewProcessor(cfg.Processing), cfg)
	verifier := &stubVerifier{}
	return &fixture{
		svc:      NewService(kvStore, engine, verifier, cfg),
		engine:   engine,
		kv:       kvStore,
		verifier: verifier,
		cfg:      cfg,
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// signedRequest builds a valid request signed by a fresh key, and points
// the stub verifier at the signer.
func signedRequest(t *testing.T, f *fixture) SignedUpdateRequest {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	f.verifier.creator = owner

	ts := time.Now().UTC().Unix()
	msg := evm.BuildSignMessage(1, testToken, ts)
	sig, err := crypto.Sign(evm.HashPersonalMessage(msg), key)
	require.NoError(t, err)

	return SignedUpdateRequest{
		ChainID:      1,
		TokenAddress: testToken,
		TokenOwner:   owner,
		Timestamp:    ts,
		Signature:    "0x" + hex.EncodeToString(sig),
		Metadata: &token.MetadataInput{
			Description: "A very good token",
			SocialNetworks: []token.SocialNetwork{
				{Name: "x", Link: "https://x.com/goodtoken"},
			},
		},
	}
}

func TestSignedUpdateHappyPath(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(t, f)

	meta, err := f.svc.SignedUpdate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "A very good token", meta.Description)
	assert.Equal(t, token.NormalizeAddress(req.TokenOwner), meta.LastUpdateBy)

	resp, err := f.svc.PublicGet(1, testToken)
	require.NoError(t, err)
	assert.Equal(t, "A very good token", resp.Description)
}

func TestSignedUpdateDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.RexPump.Enabled = false

	_, err := f.svc.SignedUpdate(context.Background(), signedRequest(t, f))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSignedUpdateStaleTimestamp(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(t, f)
	req.Timestamp -= f.cfg.RexPump.SignatureMaxAgeSeconds + 100

	_, err := f.svc.SignedUpdate(context.Background(), req)
	assert.Equal(t, apperr.KindInvalidSignature, apperr.KindOf(err))
}

func TestSignedUpdateFutureTimestamp(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(t, f)
	req.Timestamp += 3600

	_, err := f.svc.SignedUpdate(context.Background(), req)
	assert.Equal(t, apperr.KindInvalidSignature, apperr.KindOf(err))
}

func TestSignedUpdateWrongOwner(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(t, f)
	// Signature recovers to the real signer, not this address.
	req.TokenOwner = "0x000000000000000000000000000000000000dead"

	_, err := f.svc.SignedUpdate(context.Background(), req)
	assert.Equal(t, apperr.KindInvalidSignature, apperr.KindOf(err))
}

func TestSignedUpdateNotCreator(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(t, f)
	// Chain says someone else created the token.
	f.verifier.creator = "0x000000000000000000000000000000000000beef"

	_, err := f.svc.SignedUpdate(context.Background(), req)
	assert.Equal(t, apperr.KindNotAuthorized, apperr.KindOf(err))
}

func TestSignedUpdateRPCDown(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(t, f)
	f.verifier.creator = ""
	f.verifier.err = apperr.E(apperr.KindInternal, "all rpc endpoints failed")

	_, err := f.svc.SignedUpdate(context.Background(), req)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestSignedUpdateLockedToken(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(t, f)

	_, err := f.svc.AdminLock(1, testToken, token.LockTypeLocked, "spam")
	require.NoError(t, err)

	_, err = f.svc.SignedUpdate(context.Background(), req)
	assert.Equal(t, apperr.KindTokenLocked, apperr.KindOf(err))
}

func TestSignedUpdateCooldown(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(t, f)

	_, err := f.svc.SignedUpdate(context.Background(), req)
	require.NoError(t, err)

	// Second update inside the cooldown window is rejected.
	req2 := signedRequest(t, f)
	_, err = f.svc.SignedUpdate(context.Background(), req2)
	assert.Equal(t, apperr.KindUpdateCooldown, apperr.KindOf(err))
}

func TestSignedUpdateRequiresContent(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(t, f)
	req.Metadata = nil

	_, err := f.svc.SignedUpdate(context.Background(), req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSignedUpdateWithImages(t *testing.T) {
	f := newFixture(t)
	req := signedRequest(t, f)
	req.ImageLight = &ImageUpload{Filename: "light.png", Data: pngBytes(t, 40, 40)}
	req.ImageDark = &ImageUpload{Filename: "dark.png", Data: pngBytes(t, 41, 41)}

	meta, err := f.svc.SignedUpdate(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, meta.ImageLightID)
	require.NotNil(t, meta.ImageDarkID)

	resp, err := f.svc.PublicGet(1, testToken)
	require.NoError(t, err)
	assert.Contains(t, resp.ImageLightURL, meta.ImageLightID.String())
	assert.Contains(t, resp.ImageDarkURL, meta.ImageDarkID.String())
}

func TestAdminUpdateReplacesImageAndDeletesOld(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.AdminUpdate(1, testToken, AdminUpdateRequest{
		ImageLight: &ImageUpload{Filename: "v1.png", Data: pngBytes(t, 30, 30)},
	})
	require.NoError(t, err)
	require.NotNil(t, first.ImageLightID)
	oldID := *first.ImageLightID

	second, err := f.svc.AdminUpdate(1, testToken, AdminUpdateRequest{
		ImageLight: &ImageUpload{Filename: "v2.png", Data: pngBytes(t, 31, 31)},
	})
	require.NoError(t, err)
	require.NotNil(t, second.ImageLightID)
	assert.NotEqual(t, oldID, *second.ImageLightID)

	// The replaced image's record is gone.
	_, err = f.kv.GetMedia(oldID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAdminUpdateRemoveImageFlag(t *testing.T) {
	f := newFixture(t)

	meta, err := f.svc.AdminUpdate(1, testToken, AdminUpdateRequest{
		ImageDark: &ImageUpload{Filename: "dark.png", Data: pngBytes(t, 30, 30)},
	})
	require.NoError(t, err)
	require.NotNil(t, meta.ImageDarkID)
	imgID := *meta.ImageDarkID

	meta, err = f.svc.AdminUpdate(1, testToken, AdminUpdateRequest{RemoveImageDark: true})
	require.NoError(t, err)
	assert.Nil(t, meta.ImageDarkID)

	_, err = f.kv.GetMedia(imgID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestPublicGetNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PublicGet(1, testToken)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestLockWithDefaults(t *testing.T) {
	f := newFixture(t)

	meta, err := f.svc.AdminUpdate(1, testToken, AdminUpdateRequest{
		Metadata:   &token.MetadataInput{Description: "Original content"},
		ImageLight: &ImageUpload{Filename: "light.png", Data: pngBytes(t, 30, 30)},
	})
	require.NoError(t, err)
	imgID := *meta.ImageLightID

	_, err = f.svc.AdminLock(1, testToken, token.LockTypeLockedWithDefaults, "rug")
	require.NoError(t, err)

	// Public read shows defaults with placeholder images.
	resp, err := f.svc.PublicGet(1, testToken)
	require.NoError(t, err)
	assert.Empty(t, resp.Description)
	assert.Empty(t, resp.SocialNetworks)
	assert.Equal(t, f.cfg.Server.BaseURL+"/m/default", resp.ImageLightURL)
	assert.Equal(t, f.cfg.Server.BaseURL+"/m/default", resp.ImageDarkURL)

	// The old image was deleted outright.
	_, err = f.kv.GetMedia(imgID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// The stored record was rewritten empty.
	admin, err := f.svc.AdminGet(1, testToken)
	require.NoError(t, err)
	require.NotNil(t, admin.Metadata)
	assert.Empty(t, admin.Metadata.Description)
	assert.True(t, admin.IsLocked)
	assert.Equal(t, token.LockTypeLockedWithDefaults, admin.Lock.LockType)
}

func TestPlainLockPreservesContent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AdminUpdate(1, testToken, AdminUpdateRequest{
		Metadata: &token.MetadataInput{Description: "kept"},
	})
	require.NoError(t, err)

	_, err = f.svc.AdminLock(1, testToken, token.LockTypeLocked, "")
	require.NoError(t, err)

	// Plain lock does not hide content from public reads.
	resp, err := f.svc.PublicGet(1, testToken)
	require.NoError(t, err)
	assert.Equal(t, "kept", resp.Description)
}

func TestUnlock(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AdminLock(1, testToken, token.LockTypeLocked, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.AdminUnlock(1, testToken))

	// Unlocking again reports not found.
	err = f.svc.AdminUnlock(1, testToken)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAdminDeleteRemovesImages(t *testing.T) {
	f := newFixture(t)

	meta, err := f.svc.AdminUpdate(1, testToken, AdminUpdateRequest{
		Metadata:   &token.MetadataInput{Description: "doomed"},
		ImageLight: &ImageUpload{Filename: "l.png", Data: pngBytes(t, 20, 20)},
	})
	require.NoError(t, err)
	imgID := *meta.ImageLightID

	require.NoError(t, f.svc.AdminDelete(1, testToken))

	_, err = f.svc.PublicGet(1, testToken)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = f.kv.GetMedia(imgID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	err = f.svc.AdminDelete(1, testToken)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAdminDeleteKeepsLock(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AdminUpdate(1, testToken, AdminUpdateRequest{
		Metadata: &token.MetadataInput{Description: "x"},
	})
	require.NoError(t, err)
	_, err = f.svc.AdminLock(1, testToken, token.LockTypeLocked, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.AdminDelete(1, testToken))

	// Locks have an independent lifecycle.
	admin, err := f.svc.AdminGet(1, testToken)
	require.NoError(t, err)
	assert.Nil(t, admin.Metadata)
	assert.True(t, admin.IsLocked)
}
