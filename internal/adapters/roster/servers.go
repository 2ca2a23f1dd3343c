// Package roster turns the live game-server list into per-host server rows and
// per-player skin sightings, and persists them in sqlite.
package roster

import (
	"fmt"
	"net/url"

	"github.com/sugawarayuuta/sonnet"
)

// ServerList is the upstream servers document.
type ServerList struct {
	Servers []Server `json:"servers"`
}

// Server is one upstream server entry. Info is kept as free-form JSON since it
// is stored back verbatim.
type Server struct {
	Addresses []string       `json:"addresses"`
	Location  *string        `json:"location"`
	Info      map[string]any `json:"info"`
}

// ServerRow is one host with its info document, protocols included.
type ServerRow struct {
	Addr string
	Info string
}

// Sighting is a player seen with a skin in a region.
type Sighting struct {
	Name   string
	Region string
	Skin   string // JSON object with n, b and f keys
}

// Snapshot is one flattened poll.
type Snapshot struct {
	Servers   []ServerRow
	Sightings []Sighting
}

// DecodeServerList parses the upstream servers document.
func DecodeServerList(data []byte) (ServerList, error) {
	var list ServerList
	if err := sonnet.Unmarshal(data, &list); err != nil {
		return ServerList{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return list, nil
}

// Flatten groups every server's addresses by host and collects the client
// sightings. Servers without addresses, info or location are skipped.
func Flatten(list ServerList) (Snapshot, error) {
	var snap Snapshot
	for _, srv := range list.Servers {
		if srv.Addresses == nil || srv.Info == nil || srv.Location == nil {
			continue
		}

		hosts := make([]string, 0, len(srv.Addresses))
		protocols := make(map[string][]string, len(srv.Addresses))
		for _, raw := range srv.Addresses {
			u, err := url.Parse(raw)
			if err != nil {
				return Snapshot{}, fmt.Errorf("%w: address %q: %w", ErrDecode, raw, err)
			}
			host := u.Hostname()
			if host == "" {
				return Snapshot{}, fmt.Errorf("%w: address %q has no host", ErrDecode, raw)
			}
			if _, ok := protocols[host]; !ok {
				hosts = append(hosts, host)
			}
			protocols[host] = append(protocols[host], u.Scheme)
		}

		for _, host := range hosts {
			info := make(map[string]any, len(srv.Info)+1)
			for k, v := range srv.Info {
				info[k] = v
			}
			info["protocols"] = protocols[host]
			b, err := sonnet.Marshal(info)
			if err != nil {
				return Snapshot{}, fmt.Errorf("%w: server %s: %w", ErrDecode, host, err)
			}
			snap.Servers = append(snap.Servers, ServerRow{Addr: host, Info: string(b)})
		}

		clients, _ := srv.Info["clients"].([]any)
		for _, c := range clients {
			client, ok := c.(map[string]any)
			if !ok {
				continue
			}
			name, ok := client["name"].(string)
			if !ok {
				continue
			}
			skin, ok := client["skin"].(map[string]any)
			if !ok {
				continue
			}
			s, err := skinJSON(skin)
			if err != nil {
				return Snapshot{}, fmt.Errorf("%w: skin of %q: %w", ErrDecode, name, err)
			}
			snap.Sightings = append(snap.Sightings, Sighting{Name: name, Region: *srv.Location, Skin: s})
		}
	}
	return snap, nil
}

// skinJSON keeps the skin name and body and feet colors under short keys.
func skinJSON(skin map[string]any) (string, error) {
	short := make(map[string]any, 3)
	for long, key := range map[string]string{"name": "n", "color_body": "b", "color_feet": "f"} {
		if v, ok := skin[long]; ok {
			short[key] = v
		}
	}
	b, err := sonnet.Marshal(short)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
