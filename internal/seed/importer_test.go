package seed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/geocoder89/userhub/internal/domain/location"
)

type fakeSource struct {
	countries []CountryData
	codes     map[string]string
	codesErr  error

	mu          sync.Mutex
	cityCalls   int
	citiesByKey map[string][]string
	cityErrFor  map[string]error
}

func (f *fakeSource) CountriesWithStates(ctx context.Context) ([]CountryData, error) {
	return f.countries, nil
}

func (f *fakeSource) CountryCodes(ctx context.Context) (map[string]string, error) {
	if f.codesErr != nil {
		return nil, f.codesErr
	}
	return f.codes, nil
}

func (f *fakeSource) Cities(ctx context.Context, country, state string) ([]string, error) {
	f.mu.Lock()
	f.cityCalls++
	f.mu.Unlock()

	key := country + "/" + state

	if err := f.cityErrFor[key]; err != nil {
		return nil, err
	}

	return f.citiesByKey[key], nil
}

type fakeStore struct {
	truncated bool
	countries []location.Country
	states    []location.State
	cities    []location.City

	failCityNames map[string]bool
}

func (f *fakeStore) TruncateAll(ctx context.Context) error {
	f.truncated = true
	return nil
}

func (f *fakeStore) InsertCountries(ctx context.Context, countries []location.Country) (int64, error) {
	f.countries = append(f.countries, countries...)
	return int64(len(countries)), nil
}

func (f *fakeStore) InsertStates(ctx context.Context, states []location.State) (int64, error) {
	f.states = append(f.states, states...)
	return int64(len(states)), nil
}

func (f *fakeStore) InsertCities(ctx context.Context, cities []location.City) (int, int, error) {
	inserted, failed := 0, 0

	for _, c := range cities {
		if f.failCityNames[c.Name] {
			failed++
			continue
		}
		f.cities = append(f.cities, c)
		inserted++
	}

	return inserted, failed, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestImporter(src Source, store Store) *Importer {
	imp := NewImporter(src, store, testLogger())
	imp.BatchDelay = 0

	return imp
}

func TestRunImportsHierarchy(t *testing.T) {
	src := &fakeSource{
		countries: []CountryData{
			{Name: "Canada", ISO2: "ca", States: []StateData{{Name: "Ontario"}, {Name: "Quebec"}}},
			{Name: "Ghana", States: []StateData{{Name: "Ashanti"}}},
		},
		codes: map[string]string{"Ghana": "GH"},
		citiesByKey: map[string][]string{
			"Canada/Ontario": {"Toronto", "Ottawa"},
			"Canada/Quebec":  {"Montreal"},
			"Ghana/Ashanti":  {"Kumasi"},
		},
	}

	store := &fakeStore{}

	totals, err := newTestImporter(src, store).Run(context.Background())

	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !store.truncated {
		t.Error("store was not cleared before import")
	}

	if totals.Countries != 2 || totals.States != 3 || totals.Cities != 4 || totals.Failed != 0 {
		t.Errorf("unexpected totals: %+v", totals)
	}

	codesByName := map[string]string{}

	for _, c := range store.countries {
		codesByName[c.Name] = c.Code
	}

	// restcountries wins over the states payload, and codes are uppercased
	if codesByName["Ghana"] != "GH" || codesByName["Canada"] != "CA" {
		t.Errorf("unexpected codes: %+v", codesByName)
	}

	// every city must point at a state that was inserted
	stateIDs := map[string]bool{}

	for _, s := range store.states {
		stateIDs[s.ID] = true
	}

	for _, c := range store.cities {
		if !stateIDs[c.StateID] {
			t.Errorf("city %q references unknown state %q", c.Name, c.StateID)
		}
	}
}

func TestRunDedupesCountriesByFirstSeen(t *testing.T) {
	src := &fakeSource{
		countries: []CountryData{
			{Name: "Canada", ISO2: "CA", States: []StateData{{Name: "Ontario"}}},
			{Name: "Canada", ISO2: "XX", States: []StateData{{Name: "Duplicate"}}},
		},
		codes: map[string]string{},
	}

	store := &fakeStore{}

	totals, err := newTestImporter(src, store).Run(context.Background())

	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if totals.Countries != 1 {
		t.Fatalf("got %d countries, want 1", totals.Countries)
	}

	if store.countries[0].Code != "CA" {
		t.Errorf("first-seen entry lost: got code %q", store.countries[0].Code)
	}

	if len(store.states) != 1 || store.states[0].Name != "Ontario" {
		t.Errorf("states from the duplicate survived: %+v", store.states)
	}
}

func TestRunToleratesCityFetchFailures(t *testing.T) {
	src := &fakeSource{
		countries: []CountryData{
			{Name: "Canada", States: []StateData{{Name: "Ontario"}, {Name: "Quebec"}}},
		},
		codes: map[string]string{},
		citiesByKey: map[string][]string{
			"Canada/Quebec": {"Montreal"},
		},
		cityErrFor: map[string]error{
			"Canada/Ontario": errors.New("upstream timeout"),
		},
	}

	store := &fakeStore{}

	totals, err := newTestImporter(src, store).Run(context.Background())

	if err != nil {
		t.Fatalf("run must not fail on a city fetch error: %v", err)
	}

	if totals.Cities != 1 {
		t.Errorf("got %d cities, want 1", totals.Cities)
	}
}

func TestRunToleratesMissingCountryCodes(t *testing.T) {
	src := &fakeSource{
		countries: []CountryData{
			{Name: "Canada", ISO3: "can", States: []StateData{{Name: "Ontario"}}},
		},
		codesErr: errors.New("restcountries down"),
	}

	store := &fakeStore{}

	_, err := newTestImporter(src, store).Run(context.Background())

	if err != nil {
		t.Fatalf("run must not fail when codes are unavailable: %v", err)
	}

	if store.countries[0].Code != "CAN" {
		t.Errorf("got code %q, want fallback CAN", store.countries[0].Code)
	}
}

func TestRunCountsFailedCityInserts(t *testing.T) {
	src := &fakeSource{
		countries: []CountryData{
			{Name: "Canada", States: []StateData{{Name: "Ontario"}}},
		},
		codes: map[string]string{},
		citiesByKey: map[string][]string{
			"Canada/Ontario": {"Toronto", "BadRow"},
		},
	}

	store := &fakeStore{failCityNames: map[string]bool{"BadRow": true}}

	totals, err := newTestImporter(src, store).Run(context.Background())

	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if totals.Cities != 1 || totals.Failed != 1 {
		t.Errorf("unexpected totals: %+v", totals)
	}
}

func TestRunBatchesStateRequests(t *testing.T) {
	states := make([]StateData, 7)

	for i := range states {
		states[i] = StateData{Name: string(rune('A' + i))}
	}

	src := &fakeSource{
		countries:   []CountryData{{Name: "Canada", States: states}},
		codes:       map[string]string{},
		citiesByKey: map[string][]string{},
	}

	store := &fakeStore{}

	imp := newTestImporter(src, store)
	imp.BatchSize = 3

	if _, err := imp.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if src.cityCalls != 7 {
		t.Errorf("got %d city fetches, want 7", src.cityCalls)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	src := &fakeSource{
		countries: []CountryData{
			{Name: "Canada", States: []StateData{{Name: "Ontario"}}},
		},
		codes: map[string]string{},
	}

	store := &fakeStore{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestImporter(src, store).Run(ctx)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
