// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package nmea

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MaxTermLen is the longest term the parser keeps. Longer terms are
// truncated but still count towards the checksum.
const MaxTermLen = 14

type sentenceType int

const (
	sentenceOther sentenceType = iota
	sentenceRMC
	sentenceGGA
)

// Term positions for the sentences the parser decodes.
const (
	rmcTime      = 1
	rmcStatus    = 2
	rmcLat       = 3
	rmcNS        = 4
	rmcLng       = 5
	rmcEW        = 6
	rmcSpeed     = 7
	rmcCourse    = 8
	rmcDate      = 9
	ggaTime      = 1
	ggaLat       = 2
	ggaNS        = 3
	ggaLng       = 4
	ggaEW        = 5
	ggaQuality   = 6
	ggaSats      = 7
	ggaHDOP      = 8
	ggaAltitude  = 9
	ggaGeoidSep  = 11
	sentenceTerm = 0
)

// staged holds field values decoded from the sentence in progress.
type staged struct {
	lat, lng   RawDegrees
	date, time uint32
	speed      int32
	course     int32
	altitude   int32
	geoid      int32
	hdop       int32
	satellites uint32
}

type candidate struct {
	id   CustomID
	term int
	val  string
	seen bool
}

// CustomID identifies a term registered with AddCustom.
type CustomID int

// Stats counts parser activity since the parser was created.
type Stats struct {
	CharsProcessed   uint32
	SentencesWithFix uint32
	FailedChecksum   uint32
	PassedChecksum   uint32
}

// Parser decodes a stream of NMEA sentences one byte at a time. Decoded
// fields are staged while a sentence is read and only become visible to
// readers once the sentence checksum has been verified.
//
// Encode must be called from a single goroutine. The getters may be called
// from any goroutine; each returns a consistent copy taken under a lock held
// only for the copy.
type Parser struct {
	mu      sync.Mutex
	data    Data
	customs []Custom

	now func() time.Time
	log *zap.Logger

	// Everything below is only touched by Encode.
	stage staged
	last  staged // values as of the last commit

	inSentence   bool
	checksumTerm bool
	parity       byte
	term         [MaxTermLen]byte
	termLen      int
	termNumber   int
	sentence     sentenceType
	name         string
	hasFix       bool
	candidates   []candidate

	chars   atomic.Uint32
	withFix atomic.Uint32
	failed  atomic.Uint32
	passed  atomic.Uint32
}

type Option func(*Parser)

// WithClock sets the time source used to stamp commits and compute ages.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		p.now = now
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Parser) {
		p.log = log
	}
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{
		now: time.Now,
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Encode consumes one character. It returns true when the character
// completed a sentence with a valid checksum.
func (p *Parser) Encode(c byte) bool {
	p.chars.Add(1)

	if c == '$' {
		p.begin()
		return false
	}
	if !p.inSentence {
		return false
	}

	if p.checksumTerm {
		if c == '\r' || c == '\n' {
			p.inSentence = false
			return false
		}
		p.term[p.termLen] = c
		p.termLen++
		if p.termLen < 2 {
			return false
		}
		p.inSentence = false
		return p.finish()
	}

	switch c {
	case ',':
		p.parity ^= c
		fallthrough
	case '*':
		p.endTerm()
		p.termNumber++
		p.termLen = 0
		p.checksumTerm = c == '*'
		return false
	case '\r', '\n':
		// line ended before the checksum, the sentence is dropped
		p.inSentence = false
		return false
	}

	if p.termLen < len(p.term) {
		p.term[p.termLen] = c
		p.termLen++
	}
	p.parity ^= c
	return false
}

// Write feeds every byte of b to Encode. It never fails.
func (p *Parser) Write(b []byte) (int, error) {
	for _, c := range b {
		p.Encode(c)
	}
	return len(b), nil
}

func (p *Parser) begin() {
	p.inSentence = true
	p.checksumTerm = false
	p.parity = 0
	p.termLen = 0
	p.termNumber = 0
	p.sentence = sentenceOther
	p.name = ""
	p.hasFix = false
	p.candidates = p.candidates[:0]
	p.stage = p.last
}

func (p *Parser) finish() bool {
	want, ok := hexByte(p.term[0], p.term[1])
	if !ok || want != p.parity {
		p.failed.Add(1)
		p.log.Debug("nmea checksum mismatch",
			zap.String("sentence", p.name), zap.Uint8("got", p.parity), zap.Uint8("want", want))
		return false
	}
	p.passed.Add(1)
	if p.hasFix {
		p.withFix.Add(1)
	}
	p.commit()
	return true
}

func (p *Parser) commit() {
	now := p.now

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.sentence {
	case sentenceRMC:
		p.commitDate(now)
		p.commitTime(now)
		if p.hasFix {
			p.commitLocation(now)
			p.data.Speed.commit(p.stage.speed, now)
			p.data.Course.commit(p.stage.course, now)
			p.last.speed, p.last.course = p.stage.speed, p.stage.course
		} else {
			p.data.Location.invalidate()
		}
	case sentenceGGA:
		p.commitTime(now)
		if p.hasFix {
			p.commitLocation(now)
			p.data.Altitude.commit(p.stage.altitude, now)
			p.data.GeoidSeparation.commit(p.stage.geoid, now)
			p.last.altitude, p.last.geoid = p.stage.altitude, p.stage.geoid
		} else {
			p.data.Location.invalidate()
		}
		p.data.Satellites.commit(p.stage.satellites, now)
		p.data.HDOP.commit(p.stage.hdop, now)
		p.last.satellites, p.last.hdop = p.stage.satellites, p.stage.hdop
	}

	for _, c := range p.candidates {
		if !c.seen {
			continue
		}
		p.customs[c.id].val = c.val
		p.customs[c.id].commit(now)
	}
}

func (p *Parser) commitLocation(now func() time.Time) {
	p.data.Location.commit(p.stage.lat, p.stage.lng, now)
	p.last.lat, p.last.lng = p.stage.lat, p.stage.lng
}

func (p *Parser) commitDate(now func() time.Time) {
	p.data.Date.commit(p.stage.date, now)
	p.last.date = p.stage.date
}

func (p *Parser) commitTime(now func() time.Time) {
	p.data.Time.commit(p.stage.time, now)
	p.last.time = p.stage.time
}

// endTerm routes the finished term to the field it belongs to. Empty and
// malformed terms leave the staged value alone.
func (p *Parser) endTerm() {
	term := string(p.term[:p.termLen])

	if p.termNumber == sentenceTerm {
		p.name = term
		p.sentence = classify(term)
		p.findCandidates(term)
		return
	}

	for i := range p.candidates {
		if p.candidates[i].term == p.termNumber {
			p.candidates[i].val = term
			p.candidates[i].seen = true
		}
	}

	if term == "" {
		return
	}
	switch p.sentence {
	case sentenceRMC:
		p.rmcTerm(term)
	case sentenceGGA:
		p.ggaTerm(term)
	}
}

// classify recognizes RMC and GGA from any talker. Proprietary sentences
// start with 'P' and are never decoded even if the rest matches.
func classify(name string) sentenceType {
	if len(name) != 5 || name[0] == 'P' {
		return sentenceOther
	}
	switch name[2:] {
	case "RMC":
		return sentenceRMC
	case "GGA":
		return sentenceGGA
	}
	return sentenceOther
}

func (p *Parser) rmcTerm(term string) {
	switch p.termNumber {
	case rmcTime:
		p.setTime(term)
	case rmcStatus:
		p.hasFix = term[0] == 'A'
	case rmcLat:
		p.setDegrees(&p.stage.lat, term)
	case rmcNS:
		p.stage.lat.Negative = term[0] == 'S'
	case rmcLng:
		p.setDegrees(&p.stage.lng, term)
	case rmcEW:
		p.stage.lng.Negative = term[0] == 'W'
	case rmcSpeed:
		setDecimal(&p.stage.speed, term)
	case rmcCourse:
		setDecimal(&p.stage.course, term)
	case rmcDate:
		if v, _, ok := leadingUint(term); ok {
			p.stage.date = v
		}
	}
}

func (p *Parser) ggaTerm(term string) {
	switch p.termNumber {
	case ggaTime:
		p.setTime(term)
	case ggaLat:
		p.setDegrees(&p.stage.lat, term)
	case ggaNS:
		p.stage.lat.Negative = term[0] == 'S'
	case ggaLng:
		p.setDegrees(&p.stage.lng, term)
	case ggaEW:
		p.stage.lng.Negative = term[0] == 'W'
	case ggaQuality:
		p.hasFix = term[0] > '0'
	case ggaSats:
		if v, _, ok := leadingUint(term); ok {
			p.stage.satellites = v
		}
	case ggaHDOP:
		setDecimal(&p.stage.hdop, term)
	case ggaAltitude:
		setDecimal(&p.stage.altitude, term)
	case ggaGeoidSep:
		setDecimal(&p.stage.geoid, term)
	}
}

func (p *Parser) setTime(term string) {
	if v, ok := parseDecimal(term); ok && v >= 0 {
		p.stage.time = uint32(v)
	}
}

func (p *Parser) setDegrees(dst *RawDegrees, term string) {
	if v, ok := parseDegrees(term); ok {
		v.Negative = dst.Negative
		*dst = v
	}
}

func setDecimal(dst *int32, term string) {
	if v, ok := parseDecimal(term); ok {
		*dst = v
	}
}

func hexByte(hi, lo byte) (byte, bool) {
	h, ok1 := fromHex(hi)
	l, ok2 := fromHex(lo)
	return h<<4 | l, ok1 && ok2
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// AddCustom registers interest in term number term of sentences named
// sentence, e.g. ("GPGSV", 3). The committed text is read with Custom.
func (p *Parser) AddCustom(sentence string, term int) CustomID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customs = append(p.customs, Custom{Sentence: sentence, Term: term})
	return CustomID(len(p.customs) - 1)
}

func (p *Parser) findCandidates(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.customs {
		if c.Sentence == name {
			p.candidates = append(p.candidates, candidate{id: CustomID(i), term: c.Term})
		}
	}
}

// Custom returns a copy of a registered custom term and marks it read.
func (p *Parser) Custom(id CustomID) Custom {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(id) < 0 || int(id) >= len(p.customs) {
		return Custom{}
	}
	c := p.customs[id]
	p.customs[id].markRead()
	return c
}

func (p *Parser) Stats() Stats {
	return Stats{
		CharsProcessed:   p.chars.Load(),
		SentencesWithFix: p.withFix.Load(),
		FailedChecksum:   p.failed.Load(),
		PassedChecksum:   p.passed.Load(),
	}
}

// read copies a committed cell and clears its updated flag, so the next read
// reports IsUpdated only if a newer value was committed in between.
func read[T any, PT interface {
	*T
	markRead()
}](mu *sync.Mutex, c PT) T {
	mu.Lock()
	defer mu.Unlock()
	v := *c
	c.markRead()
	return v
}

func (p *Parser) Location() Location        { return read(&p.mu, &p.data.Location) }
func (p *Parser) Date() Date                { return read(&p.mu, &p.data.Date) }
func (p *Parser) Time() Time                { return read(&p.mu, &p.data.Time) }
func (p *Parser) Speed() Speed              { return read(&p.mu, &p.data.Speed) }
func (p *Parser) Course() Course            { return read(&p.mu, &p.data.Course) }
func (p *Parser) Altitude() Altitude        { return read(&p.mu, &p.data.Altitude) }
func (p *Parser) GeoidSeparation() Altitude { return read(&p.mu, &p.data.GeoidSeparation) }
func (p *Parser) Satellites() Integer       { return read(&p.mu, &p.data.Satellites) }
func (p *Parser) HDOP() Decimal             { return read(&p.mu, &p.data.HDOP) }

// Snapshot copies every committed value at once without touching the
// updated flags.
func (p *Parser) Snapshot() Data {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}
