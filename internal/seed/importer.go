package seed

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/userhub/internal/domain/location"
	"github.com/google/uuid"
)

// Source is the upstream API surface, kept small so tests can fake it.
type Source interface {
	CountriesWithStates(ctx context.Context) ([]CountryData, error)
	CountryCodes(ctx context.Context) (map[string]string, error)
	Cities(ctx context.Context, country, state string) ([]string, error)
}

// Store is the subset of the locations repo the importer writes through.
type Store interface {
	TruncateAll(ctx context.Context) error
	InsertCountries(ctx context.Context, countries []location.Country) (int64, error)
	InsertStates(ctx context.Context, states []location.State) (int64, error)
	InsertCities(ctx context.Context, cities []location.City) (int, int, error)
}

type Importer struct {
	source Source
	store  Store
	log    *slog.Logger

	// BatchSize states are fetched concurrently, then the importer sleeps
	// BatchDelay before the next batch to stay under upstream rate limits.
	BatchSize  int
	BatchDelay time.Duration
}

func NewImporter(source Source, store Store, log *slog.Logger) *Importer {
	return &Importer{
		source:     source,
		store:      store,
		log:        log,
		BatchSize:  20,
		BatchDelay: 500 * time.Millisecond,
	}
}

type Totals struct {
	Countries int
	States    int
	Cities    int
	Failed    int
}

// stateRequest carries what the per-state city fetch needs.
type stateRequest struct {
	country string
	state   string
	stateID string
}

// Run executes the full import: countries and states first, then cities
// per state in bounded concurrent batches. A failed city fetch yields an
// empty list for that state; a failed city insert skips the row. Only the
// country/state phase can abort the run.
func (imp *Importer) Run(ctx context.Context) (Totals, error) {
	var totals Totals

	countriesData, err := imp.source.CountriesWithStates(ctx)

	if err != nil {
		return totals, err
	}

	codes, err := imp.source.CountryCodes(ctx)

	if err != nil {
		imp.log.Warn("country codes unavailable, continuing without codes", "err", err)
		codes = map[string]string{}
	}

	// dedupe by first-seen name; later duplicates are dropped
	seen := make(map[string]struct{}, len(countriesData))
	deduped := make([]CountryData, 0, len(countriesData))

	for _, cd := range countriesData {
		if _, ok := seen[cd.Name]; ok {
			imp.log.Warn("skipping duplicate country", "name", cd.Name)
			continue
		}
		seen[cd.Name] = struct{}{}
		deduped = append(deduped, cd)
	}

	now := time.Now().UTC()

	countries := make([]location.Country, 0, len(deduped))
	states := make([]location.State, 0)
	requests := make([]stateRequest, 0)

	for _, cd := range deduped {
		countryID := uuid.NewString()

		countries = append(countries, location.Country{
			ID:        countryID,
			Name:      strings.TrimSpace(cd.Name),
			Code:      countryCode(cd, codes),
			CreatedAt: now,
			UpdatedAt: now,
		})

		for _, st := range cd.States {
			stateID := uuid.NewString()

			states = append(states, location.State{
				ID:        stateID,
				Name:      strings.TrimSpace(st.Name),
				CountryID: countryID,
				CreatedAt: now,
				UpdatedAt: now,
			})

			requests = append(requests, stateRequest{
				country: cd.Name,
				state:   st.Name,
				stateID: stateID,
			})
		}
	}

	if err := imp.store.TruncateAll(ctx); err != nil {
		return totals, err
	}

	inserted, err := imp.store.InsertCountries(ctx, countries)

	if err != nil {
		return totals, err
	}

	totals.Countries = int(inserted)
	imp.log.Info("countries inserted", "count", totals.Countries)

	if len(states) > 0 {
		insertedStates, err := imp.store.InsertStates(ctx, states)

		if err != nil {
			return totals, err
		}

		totals.States = int(insertedStates)
		imp.log.Info("states inserted", "count", totals.States)
	}

	batchSize := imp.BatchSize

	if batchSize <= 0 {
		batchSize = 20
	}

	for i := 0; i < len(requests); i += batchSize {
		if ctx.Err() != nil {
			return totals, ctx.Err()
		}

		end := i + batchSize

		if end > len(requests) {
			end = len(requests)
		}

		batch := requests[i:end]

		cities := imp.fetchCitiesBatch(ctx, batch, now)

		ins, failed, err := imp.store.InsertCities(ctx, cities)

		if err != nil {
			return totals, err
		}

		totals.Cities += ins
		totals.Failed += failed

		imp.log.Info("progress",
			"states_processed", end,
			"states_total", len(requests),
			"cities_inserted", totals.Cities,
		)

		if end < len(requests) && imp.BatchDelay > 0 {
			time.Sleep(imp.BatchDelay)
		}
	}

	return totals, nil
}

// fetchCitiesBatch fans out one goroutine per state and waits for all
// outcomes. A failed fetch contributes no cities rather than an error.
func (imp *Importer) fetchCitiesBatch(ctx context.Context, batch []stateRequest, now time.Time) []location.City {
	results := make([][]string, len(batch))

	var wg sync.WaitGroup

	for i, req := range batch {
		wg.Add(1)

		go func(i int, req stateRequest) {
			defer wg.Done()

			names, err := imp.source.Cities(ctx, req.country, req.state)

			if err != nil {
				imp.log.Warn("city fetch failed", "country", req.country, "state", req.state, "err", err)
				return
			}

			results[i] = names
		}(i, req)
	}

	wg.Wait()

	cities := make([]location.City, 0)

	for i, names := range results {
		for _, name := range names {
			name = strings.TrimSpace(name)

			if name == "" {
				continue
			}

			cities = append(cities, location.City{
				ID:        uuid.NewString(),
				Name:      name,
				StateID:   batch[i].stateID,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}

	return cities
}

// countryCode prefers the restcountries ISO code, then whatever the
// states payload carried, always uppercased.
func countryCode(cd CountryData, codes map[string]string) string {
	code := codes[cd.Name]

	if code == "" {
		code = cd.ISO2
	}

	if code == "" {
		code = cd.ISO3
	}

	return strings.ToUpper(strings.TrimSpace(code))
}
