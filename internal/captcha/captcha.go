// Package captcha issues and checks the arithmetic challenges shown on the
// public contact form.
package captcha

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalid = errors.New("Invalid or expired captcha. Please refresh.")
	ErrExpired = errors.New("Captcha expired.")
	ErrWrong   = errors.New("Incorrect math answer.")
)

// Challenge is handed to the browser.
type Challenge struct {
	Token    string `json:"token"`
	Question string `json:"question"`
}

type entry struct {
	answer string
	issued time.Time
}

// Store keeps outstanding challenges in memory.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	intn    func(n int) int
}

// NewStore returns a store whose challenges expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		intn:    rand.Intn,
	}
}

// Issue creates a new "a + b = ?" challenge with a, b in [1, 10] and drops
// expired ones.
func (s *Store) Issue() Challenge {
	a, b := s.intn(10)+1, s.intn(10)+1
	token := strings.ReplaceAll(uuid.NewString(), "-", "")

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if now.Sub(e.issued) > s.ttl {
			delete(s.entries, k)
		}
	}
	s.entries[token] = entry{answer: strconv.Itoa(a + b), issued: now}
	return Challenge{Token: token, Question: fmt.Sprintf("%d + %d = ?", a, b)}
}

// Verify consumes token when answer is right. A wrong answer leaves the
// challenge in place so the visitor can retry.
func (s *Store) Verify(token, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if token == "" || !ok {
		return ErrInvalid
	}
	if s.now().Sub(e.issued) > s.ttl {
		delete(s.entries, token)
		return ErrExpired
	}
	if strings.TrimSpace(answer) != e.answer {
		return ErrWrong
	}
	delete(s.entries, token)
	return nil
}

// Len reports the number of outstanding challenges.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
