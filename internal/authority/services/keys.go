// Package services contains the Authority's business logic: client key
// registration, upload authorization and processed-result intake.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/geoupload/internal/authority/repositories/repomanager"
	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/cryptox"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/models"
)

// KeyService registers the public keys clients sign their uploads with.
type KeyService struct {
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewKeyService(m repomanager.RepositoryManager, log logging.Logger) *KeyService {
	return &KeyService{repomanager: m, log: log.With("module", "keys")}
}

// RegisterKey stores publicKeyPEM under (userID, keyID). The PEM must be an
// ECDSA P-256 public key; duplicates yield common.ErrAlreadyExists.
func (s *KeyService) RegisterKey(ctx context.Context, userID, keyID, publicKeyPEM string) (*models.ClientKey, error) {
	keyID = strings.TrimSpace(keyID)
	if !common.IsValidIdentifier(keyID) {
		return nil, fmt.Errorf("%w: key_id must be 1-%d letters, digits or dashes", common.ErrValidation, common.MaxIdentifierLen)
	}
	if _, err := cryptox.ParsePublicKeyPEM(publicKeyPEM); err != nil {
		return nil, err
	}

	key, err := s.repomanager.ClientKeys().Create(ctx, &models.ClientKey{
		UserID:       userID,
		KeyID:        keyID,
		PublicKeyPEM: publicKeyPEM,
	})
	if err != nil {
		return nil, fmt.Errorf("error registering key: %w", err)
	}

	s.log.Info(ctx, "client key registered", "user_id", userID, "key_id", keyID)
	return key, nil
}
