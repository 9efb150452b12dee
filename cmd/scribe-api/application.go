package main

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/scribe/backend/internal/cliffnotes"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/config"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/database"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/fieldcrypt"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/mongostore"
	"github.com/MarcoPoloResearchLab/scribe/backend/internal/summaries"
	"go.uber.org/zap"
)

var errEncryptionSelfTest = errors.New("encryption self test failed")

// application bundles the summary service with the resources it must release.
type application struct {
	service *summaries.Service
	closers []func()
}

func (a *application) close() {
	for index := len(a.closers) - 1; index >= 0; index-- {
		a.closers[index]()
	}
}

func openApplication(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (*application, error) {
	key, err := fieldcrypt.ParseKey(appConfig.EncryptionKey)
	if err != nil {
		return nil, err
	}
	codec, err := fieldcrypt.NewCodec(key)
	if err != nil {
		return nil, err
	}
	if !codec.SelfTest() {
		return nil, errEncryptionSelfTest
	}

	app := &application{}
	store, err := openStore(ctx, appConfig, logger, app)
	if err != nil {
		app.close()
		return nil, err
	}

	var generator summaries.TextGenerator
	if appConfig.GeneratorEnabled() {
		chatModel, err := cliffnotes.NewArkChatModel(ctx, cliffnotes.ModelConfig{
			APIKey:      appConfig.ArkAPIKey,
			Model:       appConfig.ArkModel,
			BaseURL:     appConfig.ArkBaseURL,
			Region:      appConfig.ArkRegion,
			MaxTokens:   appConfig.ArkMaxTokens,
			Temperature: float32(appConfig.ArkTemperature),
		})
		if err != nil {
			app.close()
			return nil, err
		}
		cliffGenerator, err := cliffnotes.NewGenerator(chatModel, logger)
		if err != nil {
			app.close()
			return nil, err
		}
		generator = cliffGenerator
	} else {
		logger.Warn("cliff note generation disabled", zap.String("reason", "ark credentials not configured"))
	}

	service, err := summaries.NewService(summaries.ServiceConfig{
		Store:         store,
		Cipher:        codec,
		TextGenerator: generator,
		IDProvider:    summaries.NewUUIDProvider(),
		Clock:         time.Now,
		Logger:        logger,
	})
	if err != nil {
		app.close()
		return nil, err
	}
	app.service = service
	return app, nil
}

func openStore(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger, app *application) (summaries.RecordStore, error) {
	switch appConfig.DatabaseDriver {
	case config.DriverMongo:
		store, err := mongostore.Open(ctx, appConfig.MongoURI, appConfig.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.Warn("mongo disconnect failed", zap.Error(err))
			}
		})
		return store, nil
	default:
		db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() {
			if err := sqlDB.Close(); err != nil {
				logger.Warn("sqlite close failed", zap.Error(err))
			}
		})
		return database.NewSummaryStore(db)
	}
}
