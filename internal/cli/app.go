// Package cli is the interactive terminal client. It wires the local store,
// key material, transport and orchestrator together and drives them from a
// small REPL.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/akuznecov/whisperkit/internal/blob"
	"github.com/akuznecov/whisperkit/internal/chat"
	"github.com/akuznecov/whisperkit/internal/config"
	"github.com/akuznecov/whisperkit/internal/directory"
	"github.com/akuznecov/whisperkit/internal/keyring"
	"github.com/akuznecov/whisperkit/internal/localstore"
	"github.com/akuznecov/whisperkit/internal/logging"
	"github.com/akuznecov/whisperkit/internal/outbox"
	"github.com/akuznecov/whisperkit/internal/rotation"
	"github.com/akuznecov/whisperkit/internal/session"
	"github.com/akuznecov/whisperkit/internal/shared"
	"github.com/akuznecov/whisperkit/internal/transport"
)

const metaMasterSalt = "master_salt"

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// App holds the wired client. Messaging services exist only between Login and
// Logout; outside that window only the local store and config are live.
type App struct {
	config *config.Config
	log    logging.Logger
	db     *sql.DB
	repos  *localstore.Repositories
	reader *bufio.Reader

	sess      *session.Session
	keys      *keyring.Store
	transport transport.Transport
	service   *chat.Service
	stopQueue context.CancelFunc
}

func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	db, repos, err := localstore.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	return &App{
		config: cfg,
		log:    logger,
		db:     db,
		repos:  repos,
		reader: bufio.NewReader(os.Stdin),
		sess:   session.New(),
		keys:   keyring.NewStore(cfg.KDFIterations),
	}, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.Close()
	a.Root(ctx)
}

func (a *App) Close() {
	if a.transport != nil {
		a.transport.Close()
	}
	a.db.Close()
}

func (a *App) isLoggedIn() bool {
	return a.service != nil
}

// Login prompts for the backend-issued session token and the local
// passphrase, then brings up the full messaging stack: sealed key store,
// identity, directory, relay connection, rotation, outbox and orchestrator.
func (a *App) Login(ctx context.Context) error {
	token, err := getSimpleText(a.reader, "Paste session token", os.Stdout)
	if err != nil {
		return err
	}
	if err := a.sess.SetToken(token); err != nil {
		return err
	}

	passphrase, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(passphrase)

	salt, err := a.masterSalt(ctx)
	if err != nil {
		return err
	}
	masterKey := keyring.DeriveMasterKey(passphrase, salt)

	sealed := keyring.NewSealedStore(a.repos.Metadata, a.repos.ChatKeys, masterKey)

	dir := directory.NewHTTPDirectory(a.config.APIBaseURL, a.sess)

	ws, err := transport.DialWS(ctx, a.config.RelayWSURL, a.sess, a.log)
	if err != nil {
		return fmt.Errorf("%w: relay: %v", shared.ErrDelivery, err)
	}
	a.transport = ws

	blobs, err := blob.NewS3Store(ctx, blob.S3Config{
		Endpoint:  a.config.S3Endpoint,
		Region:    a.config.S3Region,
		Bucket:    a.config.S3Bucket,
		AccessKey: a.config.S3AccessKey,
		SecretKey: a.config.S3SecretKey,
	})
	if err != nil {
		return err
	}

	a.service = chat.NewService(chat.Deps{
		Session:    a.sess,
		Keys:       a.keys,
		Sealed:     sealed,
		Chats:      a.repos.Chats,
		OutboxRepo: a.repos.Outbox,
		Rotation:   rotation.NewManager(a.db, a.keys, sealed, dir, dir, ws, a.log),
		Directory:  dir,
		Members:    dir,
		Transport:  ws,
		Blobs:      blobs,
		Log:        a.log,
	}, outbox.WithInterval(a.config.RetryInterval), outbox.WithMaxRetries(a.config.MaxRetries))

	if err := a.service.InitIdentity(ctx); err != nil {
		a.service = nil
		return err
	}

	queueCtx, cancel := context.WithCancel(ctx)
	a.stopQueue = cancel
	go a.service.Outbox().Run(queueCtx)

	log.Printf("Logged in as %s", a.sess.UserID())
	return nil
}

// Logout wipes key material and tears the messaging stack down.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		return nil
	}
	if a.stopQueue != nil {
		a.stopQueue()
	}
	if err := a.service.Logout(ctx); err != nil {
		return err
	}
	if a.transport != nil {
		a.transport.Close()
		a.transport = nil
	}
	a.service = nil
	return nil
}

// masterSalt returns the device's stored salt, generating one on first login.
// The salt is not secret; only the passphrase is.
func (a *App) masterSalt(ctx context.Context) ([]byte, error) {
	salt, err := a.repos.Metadata.Get(ctx, metaMasterSalt)
	if err != nil {
		return nil, err
	}
	if salt != nil {
		return salt, nil
	}
	salt, err = shared.RandBytes(16)
	if err != nil {
		return nil, err
	}
	if err := a.repos.Metadata.Set(ctx, metaMasterSalt, salt); err != nil {
		return nil, err
	}
	return salt, nil
}
