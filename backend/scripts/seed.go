// Seed populates a development Firestore (usually the emulator) with users
// spread across a few cities plus fixtures for both legacy data layouts, so
// the read fallback chain can be exercised locally.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fanlink/backend/internal/relations"
	fsadapter "fanlink/backend/internal/store/firestore"
	"fanlink/backend/internal/store"
	"fanlink/backend/pkg/config"
	"fanlink/backend/pkg/logger"
)

type seedLocation struct {
	city, province, country string
}

var locations = []seedLocation{
	{"Lagos", "Lagos State", "Nigeria"},
	{"Abuja", "FCT", "Nigeria"},
	{"Accra", "Greater Accra", "Ghana"},
	{"Nairobi", "Nairobi County", "Kenya"},
	{"", "Rivers State", "Nigeria"}, // blank city exercises scope fallback
}

func main() {
	userCount := flag.Int("users", 25, "Number of users to create")
	withLegacy := flag.Bool("legacy", true, "Also write legacy-layout fixtures")
	flag.Parse()

	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()
	log := logger.Get()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.FirestoreEmulator == "" && cfg.IsProduction() {
		log.Fatal("Refusing to seed a production project without an emulator")
	}

	ctx := context.Background()
	db, err := fsadapter.New(ctx, cfg.FirestoreProjectID, cfg.CredentialsFile, cfg.TxMaxAttempts)
	if err != nil {
		log.Fatal("Failed to create Firestore client", zap.Error(err))
	}
	defer db.Close()

	prefs := []string{"local", "provincial", "national", "global"}

	ids := make([]string, 0, *userCount)
	for i := 0; i < *userCount; i++ {
		id := uuid.NewString()
		ids = append(ids, id)
		loc := locations[i%len(locations)]

		err := db.Set(ctx, "users/"+id, map[string]any{
			"userId":            id,
			"displayName":       fmt.Sprintf("seed-user-%02d", i),
			"photoUrl":          fmt.Sprintf("https://placekitten.com/200/%d", 200+i),
			"score":             int64(rand.Intn(1000)),
			"city":              loc.city,
			"province":          loc.province,
			"country":           loc.country,
			"rankingPreference": prefs[i%len(prefs)],
			"createdAt":         time.Now().UTC(),
		}, false)
		if err != nil {
			log.Fatal("Failed to write user", zap.String("user_id", id), zap.Error(err))
		}
	}
	log.Info("Users created", zap.Int("count", len(ids)))

	// a few live edges through the real engine
	svc := relations.NewService(db)
	created := 0
	for i := 1; i < len(ids) && i <= 10; i++ {
		if err := svc.CreateFollow(ctx, ids[i], ids[0]); err != nil {
			log.Warn("Seed follow failed", zap.Error(err))
			continue
		}
		created++
	}
	log.Info("Follow edges created", zap.Int("count", created))

	if *withLegacy && len(ids) >= 4 {
		seedLegacy(ctx, db, log, ids)
	}

	log.Info("Seed complete")
	os.Exit(0)
}

// seedLegacy writes fixtures in the two pre-migration layouts: the
// per-user array document and the generic edge collection
func seedLegacy(ctx context.Context, db store.Store, log *zap.Logger, ids []string) {
	err := db.Set(ctx, "relationLists/"+ids[1], map[string]any{
		"following":     []string{ids[2], ids[3]},
		"subscriptions": []string{ids[3]},
	}, false)
	if err != nil {
		log.Warn("Failed to write legacy list fixture", zap.Error(err))
	}

	err = db.Set(ctx, "relationships/"+uuid.NewString(), map[string]any{
		"sourceId":  ids[2],
		"targetId":  ids[1],
		"kind":      "follow",
		"state":     "active",
		"createdAt": time.Now().UTC(),
	}, false)
	if err != nil {
		log.Warn("Failed to write generic edge fixture", zap.Error(err))
	}

	log.Info("Legacy fixtures written")
}
