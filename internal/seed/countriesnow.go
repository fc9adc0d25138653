package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	countriesNowBase = "https://countriesnow.space/api/v0.1"
	restCountriesURL = "https://restcountries.com/v3.1/all?fields=name,cca2"
)

// CountryData is one country with its states as reported upstream.
type CountryData struct {
	Name   string      `json:"name"`
	ISO2   string      `json:"iso2"`
	ISO3   string      `json:"iso3"`
	States []StateData `json:"states"`
}

type StateData struct {
	Name string `json:"name"`
}

// Client talks to the two upstream reference-data APIs with a fixed
// per-request timeout.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

type countriesResponse struct {
	Error bool          `json:"error"`
	Msg   string        `json:"msg"`
	Data  []CountryData `json:"data"`
}

// CountriesWithStates fetches the full country/state listing. The upstream
// sometimes rejects plain GETs, so an empty POST is the fallback.
func (c *Client) CountriesWithStates(ctx context.Context) ([]CountryData, error) {
	data, err := c.fetchCountries(ctx, http.MethodGet)

	if err != nil {
		data, err = c.fetchCountries(ctx, http.MethodPost)
	}

	return data, err
}

func (c *Client) fetchCountries(ctx context.Context, method string) ([]CountryData, error) {
	var body io.Reader

	if method == http.MethodPost {
		body = bytes.NewBufferString("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, countriesNowBase+"/countries/states", body)

	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)

	if err != nil {
		return nil, err
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("countries fetch: unexpected status %d", res.StatusCode)
	}

	var out countriesResponse

	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}

	if out.Error {
		return nil, fmt.Errorf("countries fetch: %s", out.Msg)
	}

	return out.Data, nil
}

type citiesResponse struct {
	Error bool     `json:"error"`
	Msg   string   `json:"msg"`
	Data  []string `json:"data"`
}

// Cities fetches the city names for one country/state pair.
func (c *Client) Cities(ctx context.Context, country, state string) ([]string, error) {
	payload, err := json.Marshal(map[string]string{
		"country": country,
		"state":   state,
	})

	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, countriesNowBase+"/countries/state/cities", bytes.NewReader(payload))

	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)

	if err != nil {
		return nil, err
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cities fetch: unexpected status %d", res.StatusCode)
	}

	var out citiesResponse

	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}

	if out.Error {
		return nil, fmt.Errorf("cities fetch: %s", out.Msg)
	}

	return out.Data, nil
}

type restCountry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	CCA2 string `json:"cca2"`
}

// CountryCodes returns a common-name → ISO alpha-2 map. Callers treat a
// failure as "no codes available" and keep going.
func (c *Client) CountryCodes(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, restCountriesURL, nil)

	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)

	if err != nil {
		return nil, err
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("country codes fetch: unexpected status %d", res.StatusCode)
	}

	var out []restCountry

	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}

	codes := make(map[string]string, len(out))

	for _, rc := range out {
		if rc.Name.Common != "" && rc.CCA2 != "" {
			codes[rc.Name.Common] = rc.CCA2
		}
	}

	return codes, nil
}
