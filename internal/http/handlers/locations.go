package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/geocoder89/userhub/internal/cache"
	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/domain/location"
	"github.com/geocoder89/userhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type LocationReader interface {
	ListCountries(ctx context.Context) ([]location.Country, error)
	ListStatesByCountry(ctx context.Context, countryID string) ([]location.State, error)
	ListCitiesByState(ctx context.Context, stateID string) ([]location.City, error)
	GetCountry(ctx context.Context, id string) (location.Country, error)
	GetState(ctx context.Context, id string) (location.State, error)
	GetCity(ctx context.Context, id string) (location.City, error)
}

type LocationsHandler struct {
	repo  LocationReader
	cache cache.Store
}

func NewLocationsHandler(repo LocationReader, store cache.Store) *LocationsHandler {
	return &LocationsHandler{repo: repo, cache: store}
}

// respondCachedList serves a list payload through the cache, as raw JSON
// with an ETag. The fetch closure runs only on a miss.
func (h *LocationsHandler) respondCachedList(ctx *gin.Context, key string, fetch func(context.Context) (interface{}, error)) {
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if h.cache != nil {
		if raw, ok := h.cache.Get(cctx, key); ok {
			RespondRawJSONWithETag(ctx, http.StatusOK, raw)
			return
		}
	}

	payload, err := fetch(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not load locations")
		return
	}

	raw, err := json.Marshal(payload)

	if err != nil {
		RespondInternal(ctx, "Could not load locations")
		return
	}

	if h.cache != nil {
		h.cache.Set(cctx, key, raw)
	}

	RespondRawJSONWithETag(ctx, http.StatusOK, raw)
}

func (h *LocationsHandler) Countries(ctx *gin.Context) {
	h.respondCachedList(ctx, "loc:countries", func(cctx context.Context) (interface{}, error) {
		return h.repo.ListCountries(cctx)
	})
}

func (h *LocationsHandler) StatesByCountry(ctx *gin.Context) {
	countryID := ctx.Param("countryId")

	if !utils.IsUUID(countryID) {
		RespondBadRequest(ctx, "country id must be a valid UUID", nil)
		return
	}

	h.respondCachedList(ctx, "loc:states:"+countryID, func(cctx context.Context) (interface{}, error) {
		return h.repo.ListStatesByCountry(cctx, countryID)
	})
}

func (h *LocationsHandler) CitiesByState(ctx *gin.Context) {
	stateID := ctx.Param("stateId")

	if !utils.IsUUID(stateID) {
		RespondBadRequest(ctx, "state id must be a valid UUID", nil)
		return
	}

	h.respondCachedList(ctx, "loc:cities:"+stateID, func(cctx context.Context) (interface{}, error) {
		return h.repo.ListCitiesByState(cctx, stateID)
	})
}

func (h *LocationsHandler) CountryByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "country id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	c, err := h.repo.GetCountry(cctx, id)

	if err != nil {
		if err == location.ErrCountryNotFound {
			RespondNotFound(ctx, "Country not found")
			return
		}
		RespondInternal(ctx, "Could not fetch country")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, c)
}

func (h *LocationsHandler) StateByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "state id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	s, err := h.repo.GetState(cctx, id)

	if err != nil {
		if err == location.ErrStateNotFound {
			RespondNotFound(ctx, "State not found")
			return
		}
		RespondInternal(ctx, "Could not fetch state")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, s)
}

func (h *LocationsHandler) CityByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "city id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	c, err := h.repo.GetCity(cctx, id)

	if err != nil {
		if err == location.ErrCityNotFound {
			RespondNotFound(ctx, "City not found")
			return
		}
		RespondInternal(ctx, "Could not fetch city")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, c)
}
