// Package mockserver is an in-memory stand-in for the WSMD backend. It serves
// the same auth, admin, device and push endpoints the console talks to.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wsmd/console/internal/client"
	"golang.org/x/crypto/bcrypt"
)

// DefaultMaxHits is the ceiling given to newly registered devices.
const DefaultMaxHits = 9

var (
	ErrUserExists     = errors.New("Username already exists")
	ErrUserNotFound   = errors.New("User not found")
	ErrDeviceNotFound = errors.New("Device not found")
	ErrBadCredentials = errors.New("Incorrect username or password")
)

// Snapshotter yields the current ordered lists pushed to stream subscribers.
type Snapshotter interface {
	Devices(ctx context.Context) ([]client.Device, error)
	Users(ctx context.Context) ([]client.User, error)
}

type userRecord struct {
	client.User
	hash string
}

type Store struct {
	mu         sync.RWMutex
	users      map[string]*userRecord
	devices    map[string]*client.Device
	nextUserID int
	cost       int
}

// NewStore returns an empty store hashing passwords at the given bcrypt
// cost. A cost of zero selects bcrypt.DefaultCost.
func NewStore(cost int) *Store {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Store{
		users:      make(map[string]*userRecord),
		devices:    make(map[string]*client.Device),
		nextUserID: 1,
		cost:       cost,
	}
}

// AddUser creates an account. Usernames are unique.
func (s *Store) AddUser(username, password string, keyUser bool) (client.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return client.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return client.User{}, ErrUserExists
	}
	rec := &userRecord{
		User: client.User{ID: s.nextUserID, Username: username, IsKeyUser: keyUser},
		hash: string(hash),
	}
	s.nextUserID++
	s.users[username] = rec
	return rec.User, nil
}

// Authenticate checks a username and password pair.
func (s *Store) Authenticate(username, password string) (client.User, error) {
	s.mu.RLock()
	rec, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return client.User{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.hash), []byte(password)); err != nil {
		return client.User{}, ErrBadCredentials
	}
	return rec.User, nil
}

// User looks up an account by name.
func (s *Store) User(username string) (client.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[username]
	if !ok {
		return client.User{}, false
	}
	return rec.User, true
}

// SetPassword replaces a user's password.
func (s *Store) SetPassword(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	rec.hash = string(hash)
	return nil
}

// Users returns all accounts ordered by ID.
func (s *Store) Users(context.Context) ([]client.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]client.User, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, rec.User)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Devices returns all devices ordered by order, then MAC address.
func (s *Store) Devices(context.Context) ([]client.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]client.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].MACAddress < out[j].MACAddress
	})
	return out, nil
}

// Register returns the device with the given MAC, creating it with the next
// free order if it is unknown.
func (s *Store) Register(mac string) client.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[mac]
	if !ok {
		order := s.nextOrderLocked()
		d = &client.Device{
			MACAddress: mac,
			Name:       autoName(mac, order),
			Order:      order,
			MaxHits:    DefaultMaxHits,
		}
		s.devices[mac] = d
	} else if d.Name == "" {
		d.Name = autoName(mac, d.Order)
	}
	return *d
}

// Hit increments a device's counter, wrapping to zero when it reaches the
// device's ceiling.
func (s *Store) Hit(mac string) (client.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[mac]
	if !ok {
		return client.Device{}, ErrDeviceNotFound
	}
	if d.Name == "" {
		d.Name = autoName(mac, d.Order)
	}
	d.HitCounter++
	if d.HitCounter >= d.MaxHits {
		d.HitCounter = 0
	}
	return *d, nil
}

// UpdateDevice sets a device's order and ceiling. An empty name keeps the
// current one, or generates one if the device has none.
func (s *Store) UpdateDevice(mac string, order, maxHits int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[mac]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Order = order
	d.MaxHits = maxHits
	switch {
	case name != "":
		d.Name = name
	case d.Name == "":
		d.Name = autoName(mac, order)
	}
	return nil
}

// PutDevice inserts or replaces a device as given. Used for seeding.
func (s *Store) PutDevice(d client.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Order == 0 {
		d.Order = s.nextOrderLocked()
	}
	if d.MaxHits == 0 {
		d.MaxHits = DefaultMaxHits
	}
	if d.Name == "" {
		d.Name = autoName(d.MACAddress, d.Order)
	}
	s.devices[d.MACAddress] = &d
}

func (s *Store) nextOrderLocked() int {
	highest := 0
	for _, d := range s.devices {
		if d.Order > highest {
			highest = d.Order
		}
	}
	return highest + 1
}

// autoName builds "Device-<last six MAC chars without colons>-O<order>".
func autoName(mac string, order int) string {
	tail := mac
	if len(tail) > 6 {
		tail = tail[len(tail)-6:]
	}
	return fmt.Sprintf("Device-%s-O%d", strings.ReplaceAll(tail, ":", ""), order)
}
