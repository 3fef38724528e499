package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"helpnet/models"
	"helpnet/repositories"
	"helpnet/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// DiscoveryService answers "what needs help near me". Discovery is a
// best-effort read path: it degrades to an empty result on any fault and
// never returns an error to the caller.
type DiscoveryService struct {
	emergencyRepo repositories.EmergencyRepository
	userRepo      repositories.UserRepository
	redis         *redis.Client
	emergencySvc  *EmergencyService
}

func NewDiscoveryService(
	emergencyRepo repositories.EmergencyRepository,
	userRepo repositories.UserRepository,
	redisClient *redis.Client,
	emergencySvc *EmergencyService,
) *DiscoveryService {
	return &DiscoveryService{
		emergencyRepo: emergencyRepo,
		userRepo:      userRepo,
		redis:         redisClient,
		emergencySvc:  emergencySvc,
	}
}

const (
	nearbyCacheTTL     = 10 * time.Second
	nearbyQueryCeiling = 100
)

// NearbyActive returns up to limit open emergencies within radiusKm of the
// point, highest priority first and newest first within a priority. The
// limit is capped; results are cached briefly since nearby clients ask the
// same question in bursts.
func (ds *DiscoveryService) NearbyActive(ctx context.Context, viewerID string, lat, lon, radiusKm float64, limit int64) []models.EmergencyView {
	if !utils.IsValidCoordinate(lat, lon) || radiusKm <= 0 {
		return []models.EmergencyView{}
	}
	if limit <= 0 || limit > nearbyQueryCeiling {
		limit = nearbyQueryCeiling
	}

	cacheKey := fmt.Sprintf("nearby:%.4f:%.4f:%.1f:%d", lat, lon, radiusKm, limit)
	if ds.redis != nil {
		if cached, err := ds.redis.Get(ctx, cacheKey).Result(); err == nil {
			var emergencies []models.Emergency
			if json.Unmarshal([]byte(cached), &emergencies) == nil {
				return ds.project(ctx, emergencies, viewerID)
			}
		}
	}

	emergencies, err := ds.emergencyRepo.GetNearbyOpen(ctx, lat, lon, radiusKm*1000, limit)
	if err != nil {
		logrus.Errorf("Nearby discovery failed: %v", err)
		return []models.EmergencyView{}
	}

	sort.SliceStable(emergencies, func(i, j int) bool {
		ri, rj := models.PriorityRank(emergencies[i].Priority), models.PriorityRank(emergencies[j].Priority)
		if ri != rj {
			return ri > rj
		}
		return emergencies[i].ActivatedAt.After(emergencies[j].ActivatedAt)
	})

	if ds.redis != nil {
		if encoded, err := json.Marshal(emergencies); err == nil {
			if err := ds.redis.Set(ctx, cacheKey, encoded, nearbyCacheTTL).Err(); err != nil {
				logrus.Debugf("Nearby cache write failed: %v", err)
			}
		}
	}

	return ds.project(ctx, emergencies, viewerID)
}

// PendingForHelper returns open emergencies the helper could still join:
// not their own and not already responded to. The store filter does the
// heavy lifting; each row is re-checked here so a stale read never leaks an
// ineligible emergency.
func (ds *DiscoveryService) PendingForHelper(ctx context.Context, helperID string) []models.EmergencyView {
	emergencies, err := ds.emergencyRepo.GetOpenExcluding(ctx, helperID)
	if err != nil {
		logrus.Errorf("Pending discovery failed for %s: %v", helperID, err)
		return []models.EmergencyView{}
	}

	eligible := emergencies[:0]
	for i := range emergencies {
		e := emergencies[i]
		if !e.IsOpen() {
			continue
		}
		if e.CreatorID.Hex() == helperID {
			continue
		}
		if e.HasResponder(helperID) {
			continue
		}
		eligible = append(eligible, e)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ri, rj := models.PriorityRank(eligible[i].Priority), models.PriorityRank(eligible[j].Priority)
		if ri != rj {
			return ri > rj
		}
		return eligible[i].ActivatedAt.After(eligible[j].ActivatedAt)
	})

	return ds.project(ctx, eligible, helperID)
}

func (ds *DiscoveryService) project(ctx context.Context, emergencies []models.Emergency, viewerID string) []models.EmergencyView {
	views := make([]models.EmergencyView, 0, len(emergencies))
	for i := range emergencies {
		views = append(views, *ds.emergencySvc.BuildView(ctx, &emergencies[i], viewerID))
	}
	return views
}
