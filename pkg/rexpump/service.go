// Package rexpump is the token-metadata engine: the signed update
// pipeline gated by EIP-191 recovery and on-chain creator verification,
// plus the unsigned admin surface with its lock state machine.
package rexpump

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
	"github.com/rexpump/mediad/pkg/evm"
	"github.com/rexpump/mediad/pkg/metrics"
	"github.com/rexpump/mediad/pkg/store/kv"
	"github.com/rexpump/mediad/pkg/token"
	"github.com/rexpump/mediad/pkg/upload"
)

// clockSkewTolerance is how far into the future a signed timestamp may
// sit before it is rejected.
const clockSkewTolerance = 60 * time.Second

// adminActor is recorded as last_update_by for unsigned admin writes.
const adminActor = "admin"

// Service runs token-metadata reads and writes.
type Service struct {
	kv       *kv.Store
	uploads  *upload.Engine
	verifier evm.CreatorVerifier
	cfg      *config.Config

	// per-token critical sections; two racing updates for the same
	// (chain, addr) serialize on one mutex
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService wires the service to its collaborators.
func NewService(kvStore *kv.Store, uploads *upload.Engine, verifier evm.CreatorVerifier, cfg *config.Config) *Service {
	return &Service{
		kv:       kvStore,
		uploads:  uploads,
		verifier: verifier,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
	}
}

// tokenMutex returns the mutex dedicated to one (chain, addr) key.
func (s *Service) tokenMutex(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// ImageUpload is one image slot payload from a multipart request.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// SignedUpdateRequest is the parsed body of POST /api/rexpump/metadata.
type SignedUpdateRequest struct {
	ChainID      uint64
	TokenAddress string
	TokenOwner   string
	Timestamp    int64
	Signature    string
	Metadata     *token.MetadataInput
	ImageLight   *ImageUpload
	ImageDark    *ImageUpload
}

// SignedUpdate runs the full creator-gated pipeline: normalize, check
// freshness, recover the signer, verify creatorship on chain, then apply
// the update under the per-token mutex (lock check, cooldown, content
// write, cooldown stamp).
func (s *Service) SignedUpdate(ctx context.Context, req SignedUpdateRequest) (*token.Metadata, error) {
	if !s.cfg.RexPump.Enabled {
		return nil, apperr.E(apperr.KindValidation, "token metadata updates are disabled")
	}

	addr := token.NormalizeAddress(req.TokenAddress)
	owner := token.NormalizeAddress(req.TokenOwner)
	if err := token.ValidateAddress(addr); err != nil {
		return nil, err
	}
	if err := token.ValidateAddress(owner); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Unix()
	if req.Timestamp > now+int64(clockSkewTolerance.Seconds()) {
		metrics.TokenUpdates.WithLabelValues("signed", "rejected").Inc()
		return nil, apperr.E(apperr.KindInvalidSignature, "timestamp is in the future")
	}
	if now-req.Timestamp > s.cfg.RexPump.SignatureMaxAgeSeconds {
		metrics.TokenUpdates.WithLabelValues("signed", "rejected").Inc()
		return nil, apperr.E(apperr.KindInvalidSignature, "signature has expired")
	}

	sig, err := evm.ParseSignatureHex(req.Signature)
	if err != nil {
		return nil, err
	}
	msg := evm.BuildSignMessage(req.ChainID, addr, req.Timestamp)
	signer, err := evm.RecoverSigner(msg, sig)
	if err != nil {
		metrics.TokenUpdates.WithLabelValues("signed", "rejected").Inc()
		return nil, err
	}
	if signer != owner {
		metrics.TokenUpdates.WithLabelValues("signed", "rejected").Inc()
		return nil, apperr.E(apperr.KindInvalidSignature, "signature does not match token_owner")
	}

	if err := evm.VerifyTokenOwner(ctx, s.verifier, req.ChainID, addr, owner); err != nil {
		metrics.TokenUpdates.WithLabelValues("signed", "rejected").Inc()
		return nil, err
	}

	key := token.Key(req.ChainID, addr)
	tm := s.tokenMutex(key)
	tm.Lock()
	defer tm.Unlock()

	if lock, err := s.kv.GetTokenLock(key); err != nil {
		return nil, err
	} else if lock != nil {
		metrics.TokenUpdates.WithLabelValues("signed", "rejected").Inc()
		return nil, apperr.E(apperr.KindTokenLocked, "token metadata is locked")
	}

	cooldown := time.Duration(s.cfg.RexPump.UpdateCooldownSeconds) * time.Second
	remaining, err := s.kv.SecondsUntilUpdate(key, cooldown)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		metrics.TokenUpdates.WithLabelValues("signed", "rejected").Inc()
		return nil, apperr.Ef(apperr.KindUpdateCooldown, "update cooldown active, retry in %d seconds", remaining)
	}

	meta, err := s.applyUpdate(key, req.ChainID, addr, owner, req.Metadata, req.ImageLight, req.ImageDark, false, false)
	if err != nil {
		metrics.TokenUpdates.WithLabelValues("signed", "error").Inc()
		return nil, err
	}

	if err := s.kv.RecordTokenUpdate(key); err != nil {
		logger.Warn("recording token update timestamp", "key", key, "error", err)
	}

	metrics.TokenUpdates.WithLabelValues("signed", "ok").Inc()
	logger.Info("token metadata updated", "chain_id", req.ChainID, "token", addr, "by", owner)
	return meta, nil
}

// AdminUpdateRequest is the parsed body of the admin PUT. Remove flags
// detach and delete a slot image without replacing it.
type AdminUpdateRequest struct {
	Metadata         *token.MetadataInput
	ImageLight       *ImageUpload
	ImageDark        *ImageUpload
	RemoveImageLight bool
	RemoveImageDark  bool
}

// AdminUpdate applies an unsigned upsert: no freshness, signature,
// creator, lock or cooldown checks, and last_update_by becomes "admin".
func (s *Service) AdminUpdate(chainID uint64, tokenAddr string, req AdminUpdateRequest) (*token.Metadata, error) {
	addr := token.NormalizeAddress(tokenAddr)
	if err := token.ValidateAddress(addr); err != nil {
		return nil, err
	}

	key := token.Key(chainID, addr)
	tm := s.tokenMutex(key)
	tm.Lock()
	defer tm.Unlock()

	meta, err := s.applyUpdate(key, chainID, addr, adminActor, req.Metadata, req.ImageLight, req.ImageDark, req.RemoveImageLight, req.RemoveImageDark)
	if err != nil {
		metrics.TokenUpdates.WithLabelValues("admin", "error").Inc()
		return nil, err
	}

	metrics.TokenUpdates.WithLabelValues("admin", "ok").Inc()
	logger.Info("token metadata updated by admin", "chain_id", chainID, "token", addr)
	return meta, nil
}

// applyUpdate loads or creates the record and applies content changes.
// Callers hold the per-token mutex.
func (s *Service) applyUpdate(key string, chainID uint64, addr, actor string, input *token.MetadataInput, light, dark *ImageUpload, removeLight, removeDark bool) (*token.Metadata, error) {
	if input == nil && light == nil && dark == nil && !removeLight && !removeDark {
		return nil, apperr.E(apperr.KindValidation, "at least one of metadata, image_light or image_dark is required")
	}

	meta, err := s.kv.GetTokenMetadata(key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = token.NewMetadata(chainID, addr, actor)
	}

	if input != nil {
		if err := input.Validate(); err != nil {
			return nil, err
		}
		meta.Description = input.Description
		meta.SocialNetworks = input.SocialNetworks
		if meta.SocialNetworks == nil {
			meta.SocialNetworks = []token.SocialNetwork{}
		}
	}

	if removeLight && light == nil {
		s.detachImage(&meta.ImageLightID)
	}
	if removeDark && dark == nil {
		s.detachImage(&meta.ImageDarkID)
	}

	if light != nil {
		if err := s.replaceImage(&meta.ImageLightID, light); err != nil {
			return nil, err
		}
	}
	if dark != nil {
		if err := s.replaceImage(&meta.ImageDarkID, dark); err != nil {
			return nil, err
		}
	}

	meta.UpdatedAt = time.Now().UTC()
	meta.LastUpdateBy = actor

	if err := s.kv.UpsertTokenMetadata(key, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// detachImage deletes the slot's media best-effort and clears the slot.
func (s *Service) detachImage(slot **uuid.UUID) {
	if *slot == nil {
		return
	}
	if err := s.uploads.DeleteMedia(**slot); err != nil {
		logger.Warn("deleting replaced token image", "media_id", **slot, "error", err)
	}
	*slot = nil
}

// replaceImage ingests the new image and swaps it into the slot, deleting
// the previous one best-effort.
func (s *Service) replaceImage(slot **uuid.UUID, img *ImageUpload) error {
	s.detachImage(slot)

	m, err := s.uploads.IngestSimple(img.Filename, img.Data)
	if err != nil {
		return err
	}
	id := m.ID
	*slot = &id
	return nil
}

// PublicGet serves the public read: locked-with-defaults tokens answer
// with placeholder content, otherwise the stored record or not found.
func (s *Service) PublicGet(chainID uint64, tokenAddr string) (token.MetadataResponse, error) {
	addr := token.NormalizeAddress(tokenAddr)
	if err := token.ValidateAddress(addr); err != nil {
		return token.MetadataResponse{}, err
	}
	key := token.Key(chainID, addr)

	lock, err := s.kv.GetTokenLock(key)
	if err != nil {
		return token.MetadataResponse{}, err
	}
	if lock != nil && lock.LockType == token.LockTypeLockedWithDefaults {
		return token.DefaultLockedResponse(chainID, addr, s.cfg.Server.BaseURL), nil
	}

	meta, err := s.kv.GetTokenMetadata(key)
	if err != nil {
		return token.MetadataResponse{}, err
	}
	if meta == nil {
		return token.MetadataResponse{}, apperr.Ef(apperr.KindNotFound, "no metadata for token %s on chain %d", addr, chainID)
	}
	return token.NewMetadataResponse(meta, s.cfg.Server.BaseURL), nil
}

// AdminGet returns the raw record plus lock state.
func (s *Service) AdminGet(chainID uint64, tokenAddr string) (token.AdminMetadataResponse, error) {
	addr := token.NormalizeAddress(tokenAddr)
	if err := token.ValidateAddress(addr); err != nil {
		return token.AdminMetadataResponse{}, err
	}
	key := token.Key(chainID, addr)

	meta, err := s.kv.GetTokenMetadata(key)
	if err != nil {
		return token.AdminMetadataResponse{}, err
	}
	lock, err := s.kv.GetTokenLock(key)
	if err != nil {
		return token.AdminMetadataResponse{}, err
	}
	return token.AdminMetadataResponse{Metadata: meta, Lock: lock, IsLocked: lock != nil}, nil
}

// AdminLock freezes a token. locked preserves content;
// locked_with_defaults deletes both images and rewrites the record to
// empty defaults before inserting the lock.
func (s *Service) AdminLock(chainID uint64, tokenAddr string, lockType token.LockType, reason string) (*token.Lock, error) {
	addr := token.NormalizeAddress(tokenAddr)
	if err := token.ValidateAddress(addr); err != nil {
		return nil, err
	}
	if !lockType.Valid() {
		return nil, apperr.Ef(apperr.KindValidation, "invalid lock_type %q", lockType)
	}

	key := token.Key(chainID, addr)
	tm := s.tokenMutex(key)
	tm.Lock()
	defer tm.Unlock()

	if lockType == token.LockTypeLockedWithDefaults {
		meta, err := s.kv.GetTokenMetadata(key)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			s.detachImage(&meta.ImageLightID)
			s.detachImage(&meta.ImageDarkID)
		}
		fresh := token.NewMetadata(chainID, addr, adminActor)
		if err := s.kv.UpsertTokenMetadata(key, fresh); err != nil {
			return nil, err
		}
	}

	lock := &token.Lock{
		ChainID:      chainID,
		TokenAddress: addr,
		LockedAt:     time.Now().UTC(),
		LockedBy:     adminActor,
		LockType:     lockType,
		Reason:       reason,
	}
	if err := s.kv.LockToken(key, lock); err != nil {
		return nil, err
	}

	logger.Info("token locked", "chain_id", chainID, "token", addr, "lock_type", lockType)
	return lock, nil
}

// AdminUnlock removes a lock; unlocking an unlocked token is not found.
func (s *Service) AdminUnlock(chainID uint64, tokenAddr string) error {
	addr := token.NormalizeAddress(tokenAddr)
	if err := token.ValidateAddress(addr); err != nil {
		return err
	}
	key := token.Key(chainID, addr)

	existed, err := s.kv.UnlockToken(key)
	if err != nil {
		return err
	}
	if !existed {
		return apperr.Ef(apperr.KindNotFound, "no lock for token %s on chain %d", addr, chainID)
	}

	logger.Info("token unlocked", "chain_id", chainID, "token", addr)
	return nil
}

// AdminDelete removes the metadata record and its images. The lock and
// cooldown records have independent lifecycles and survive.
func (s *Service) AdminDelete(chainID uint64, tokenAddr string) error {
	addr := token.NormalizeAddress(tokenAddr)
	if err := token.ValidateAddress(addr); err != nil {
		return err
	}
	key := token.Key(chainID, addr)

	tm := s.tokenMutex(key)
	tm.Lock()
	defer tm.Unlock()

	meta, err := s.kv.GetTokenMetadata(key)
	if err != nil {
		return err
	}
	if meta == nil {
		return apperr.Ef(apperr.KindNotFound, "no metadata for token %s on chain %d", addr, chainID)
	}

	s.detachImage(&meta.ImageLightID)
	s.detachImage(&meta.ImageDarkID)

	if _, err := s.kv.DeleteTokenMetadata(key); err != nil {
		return err
	}

	logger.Info("token metadata deleted", "chain_id", chainID, "token", addr)
	return nil
}
