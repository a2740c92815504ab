package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"

	"github.com/pkg/errors"
	xssh "golang.org/x/crypto/ssh"
)

// KeyPair is a run-scoped SSH identity: cloud-init bakes PublicAuthorizedKey
// into the VM's authorized_keys, and SessionConfig.PrivateKeyPEM carries
// PrivateKeyPEM to authenticate against it.
type KeyPair struct {
	PrivateKeyPEM        []byte
	PublicAuthorizedKey  string // "ssh-ed25519 AAAA...\n" (no key comment)
}

// GenerateKeyPair creates a fresh ed25519 key pair for one run. Every run
// gets its own identity; nothing is persisted across runs.
func GenerateKeyPair() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating ed25519 key")
	}

	sshSigner, err := xssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "converting to ssh signer")
	}

	block, err := xssh.MarshalPrivateKey(priv, "intar run key")
	if err != nil {
		return nil, errors.Wrap(err, "marshaling private key")
	}

	authorizedKey := xssh.MarshalAuthorizedKey(sshSigner.PublicKey())

	return &KeyPair{
		PrivateKeyPEM:       pem.EncodeToMemory(block),
		PublicAuthorizedKey: string(authorizedKey),
	}, nil
}
