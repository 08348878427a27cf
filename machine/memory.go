// memory.go - paged memory dispatch: RAM/empty/mirror/special overlays,
// ported from bare68k's machine_src/glue/mem.c, restructured as an owning
// page arena (spec.md §9) in the style of machine_bus.go's MachineBus.

package machine

import "fmt"

type pageKind int

const (
	pageNone pageKind = iota
	pageMemory
	pageEmpty
	pageMirror
	pageSpecial
)

// SpecialReadFunc backs a special overlay's read side. The returned value
// is always fed back to the caller regardless of outcome; payload is
// attached to any enqueued event.
type SpecialReadFunc func(access int, addr uint32, data any) (value uint32, payload any, outcome Outcome)

// SpecialWriteFunc backs a special overlay's write side.
type SpecialWriteFunc func(access int, addr uint32, value uint32, data any) (payload any, outcome Outcome)

// CPUTraceFunc is invoked on every successful CPU-facing access, i.e. one
// whose page handler executed.
type CPUTraceFunc func(access int, addr uint32, value uint32) (payload any, outcome Outcome)

// APITraceFunc is invoked on every successful typed-API access.
type APITraceFunc func(apiAccess int, addr uint32, extra uint32)

// WatchpointProbe is supplied by Tools; it reports the lowest enabled
// watchpoint id matching (addr, access), if any.
type WatchpointProbe func(addr uint32, access int) (id int, data any, hit bool)

// MemoryRegion is a run of contiguous pages backed by one zeroed buffer.
type MemoryRegion struct {
	StartPage int
	NumPages  int
	Flags     int
	buf       []byte
}

// SpecialOverlay carries the read/write callbacks for a special page range.
type SpecialOverlay struct {
	StartPage int
	NumPages  int
	ReadFn    SpecialReadFunc
	ReadData  any
	WriteFn   SpecialWriteFunc
	WriteData any
}

type pageEntry struct {
	kind pageKind

	canRead  bool
	canWrite bool

	region *MemoryRegion
	data   []byte // only for kind==pageMemory: remainder of region's buffer from this page

	emptyValue uint32 // only for kind==pageEmpty

	mirrorTarget int // only for kind==pageMirror: absolute target page index

	special *SpecialOverlay // only for kind==pageSpecial
}

// Memory is the page-dispatch engine (spec.md §4.B).
type Memory struct {
	pages        []pageEntry
	numPages     int
	invalidValue uint32
	regions      []*MemoryRegion
	overlays     []*SpecialOverlay

	bus *EventBus

	cpuTrace     CPUTraceFunc
	apiTrace     APITraceFunc
	probeWatch   WatchpointProbe
	currentFC    func() uint8
}

// NewMemory allocates an all-unmapped page table of numPages entries.
func NewMemory(numPages int, bus *EventBus) *Memory {
	return &Memory{
		pages:        make([]pageEntry, numPages),
		numPages:     numPages,
		invalidValue: DefaultInvalidValue,
		bus:          bus,
		currentFC:    func() uint8 { return 0 },
	}
}

func (m *Memory) NumPages() int  { return m.numPages }
func (m *Memory) PageShift() int { return PageShift }

// SetInvalidValue overrides the value (truncated per width) returned for
// accesses with no handler. Default is DefaultInvalidValue.
func (m *Memory) SetInvalidValue(v uint32) { m.invalidValue = v }

// SetCPUTraceFunc installs the CPU-facing trace hook (MEM_TRACE source).
func (m *Memory) SetCPUTraceFunc(f CPUTraceFunc) { m.cpuTrace = f }

// SetAPITraceFunc installs the typed-API trace hook.
func (m *Memory) SetAPITraceFunc(f APITraceFunc) { m.apiTrace = f }

// SetWatchpointProbe wires the Tools watchpoint checker into the CPU-facing
// access path.
func (m *Memory) SetWatchpointProbe(p WatchpointProbe) { m.probeWatch = p }

// SetFunctionCodeSource wires an accessor for the CPU driver's current
// function code, used to tag bounds/access/watchpoint events.
func (m *Memory) SetFunctionCodeSource(f func() uint8) { m.currentFC = f }

func truncate(v uint32, width int) uint32 {
	switch width {
	case AccessWidth8:
		return v & 0xff
	case AccessWidth16:
		return v & 0xffff
	default:
		return v
	}
}

func validRange(start, num, total int) error {
	if num <= 0 {
		return ErrZeroPages
	}
	if start < 0 || start+num > total {
		return ErrOutOfRange
	}
	return nil
}

// AddMemory installs a RAM-backed region of num pages starting at
// startPage, zero-initialized, with the given READ/WRITE/TRAPS flags.
func (m *Memory) AddMemory(startPage, numPages, flags int) (*MemoryRegion, error) {
	if err := validRange(startPage, numPages, m.numPages); err != nil {
		return nil, err
	}
	region := &MemoryRegion{
		StartPage: startPage,
		NumPages:  numPages,
		Flags:     flags,
		buf:       make([]byte, numPages*PageSize),
	}
	for i := 0; i < numPages; i++ {
		p := &m.pages[startPage+i]
		*p = pageEntry{
			kind:     pageMemory,
			canRead:  flags&MemFlagRead != 0,
			canWrite: flags&MemFlagWrite != 0,
			region:   region,
			data:     region.buf[i*PageSize:],
		}
	}
	m.regions = append(m.regions, region)
	return region, nil
}

// AddEmpty installs readers returning value (truncated per width) and
// discarding writers, per flags. No buffer is owned.
func (m *Memory) AddEmpty(startPage, numPages, flags int, value uint32) error {
	if err := validRange(startPage, numPages, m.numPages); err != nil {
		return err
	}
	for i := 0; i < numPages; i++ {
		p := &m.pages[startPage+i]
		*p = pageEntry{
			kind:       pageEmpty,
			canRead:    flags&MemFlagRead != 0,
			canWrite:   flags&MemFlagWrite != 0,
			emptyValue: value,
		}
	}
	return nil
}

// AddMirror installs readers/writers that forward, one hop, to the handlers
// of basePage+(page-startPage).
func (m *Memory) AddMirror(startPage, numPages, flags int, basePage int) error {
	if err := validRange(startPage, numPages, m.numPages); err != nil {
		return err
	}
	if err := validRange(basePage, numPages, m.numPages); err != nil {
		return err
	}
	if basePage == startPage {
		return ErrSelfMirror
	}
	for i := 0; i < numPages; i++ {
		p := &m.pages[startPage+i]
		*p = pageEntry{
			kind:         pageMirror,
			canRead:      flags&MemFlagRead != 0,
			canWrite:     flags&MemFlagWrite != 0,
			mirrorTarget: basePage + i,
		}
	}
	return nil
}

// AddSpecial installs a host-callback-backed overlay. Either callback may
// be nil, in which case that direction has no handler installed.
func (m *Memory) AddSpecial(startPage, numPages int, readFn SpecialReadFunc, readData any, writeFn SpecialWriteFunc, writeData any) (*SpecialOverlay, error) {
	if err := validRange(startPage, numPages, m.numPages); err != nil {
		return nil, err
	}
	overlay := &SpecialOverlay{
		StartPage: startPage,
		NumPages:  numPages,
		ReadFn:    readFn,
		ReadData:  readData,
		WriteFn:   writeFn,
		WriteData: writeData,
	}
	for i := 0; i < numPages; i++ {
		p := &m.pages[startPage+i]
		*p = pageEntry{
			kind:     pageSpecial,
			canRead:  readFn != nil,
			canWrite: writeFn != nil,
			special:  overlay,
		}
	}
	m.overlays = append(m.overlays, overlay)
	return overlay, nil
}

// GetMemoryFlags reports the flags of the memory region owning addr's page,
// or 0 if the page is unmapped/mirror/empty/special.
func (m *Memory) GetMemoryFlags(addr uint32) int {
	page := int(addr >> PageShift)
	if page < 0 || page >= m.numPages {
		return 0
	}
	p := &m.pages[page]
	if p.kind == pageMemory {
		return p.region.Flags
	}
	return 0
}

// ---- CPU-facing access path (spec.md §4.B) ----

func (m *Memory) accessWord(width int, write bool) int {
	return AccessWord(width, write, MapFunctionCode(m.currentFC()))
}

func (m *Memory) enqueue(kind EventKind, addr, value uint32, access int, data any) {
	if m.bus == nil {
		return
	}
	m.bus.Add(kind, addr, value, uint32(access), data)
}

// readDispatch resolves addr's handler chain for width, returning the value
// and whether a handler executed. It does not itself enqueue events; the
// caller (CPU path or API path) decides how to react to a miss.
func (m *Memory) readDispatch(page *pageEntry, addr uint32, width int) (uint32, bool) {
	if !page.canRead {
		return 0, false
	}
	switch page.kind {
	case pageMemory:
		return readBE(page.data, addr&PageMask, width), true
	case pageEmpty:
		return truncate(page.emptyValue, width), true
	case pageMirror:
		target := &m.pages[page.mirrorTarget]
		if target.kind == pageMirror {
			return 0, false // one hop only: a mirror of a mirror has no handler
		}
		return m.readDispatch(target, addr, width)
	case pageSpecial:
		access := m.accessWord(width, false)
		value, payload, outcome := page.special.ReadFn(access, addr, page.special.ReadData)
		switch outcome {
		case OutcomeEvent:
			m.enqueue(MemSpecial, addr, value, access, payload)
		case OutcomeError:
			m.enqueue(CallbackError, addr, value, access, payload)
		}
		return value, true
	default:
		return 0, false
	}
}

func (m *Memory) writeDispatch(page *pageEntry, addr uint32, width int, value uint32) bool {
	if !page.canWrite {
		return false
	}
	switch page.kind {
	case pageMemory:
		writeBE(page.data, addr&PageMask, width, value)
		return true
	case pageEmpty:
		return true // discard
	case pageMirror:
		target := &m.pages[page.mirrorTarget]
		if target.kind == pageMirror {
			return false // one hop only: a mirror of a mirror has no handler
		}
		return m.writeDispatch(target, addr, width, value)
	case pageSpecial:
		access := m.accessWord(width, true)
		payload, outcome := page.special.WriteFn(access, addr, value, page.special.WriteData)
		switch outcome {
		case OutcomeEvent:
			m.enqueue(MemSpecial, addr, value, access, payload)
		case OutcomeError:
			m.enqueue(CallbackError, addr, value, access, payload)
		}
		return true
	default:
		return false
	}
}

func (m *Memory) cpuRead(addr uint32, width int) uint32 {
	page := int(addr >> PageShift)
	access := m.accessWord(width, false)
	if page < 0 || page >= m.numPages {
		inv := truncate(m.invalidValue, width)
		m.enqueue(MemBounds, addr, inv, access, nil)
		return inv
	}
	p := &m.pages[page]
	value, ok := m.readDispatch(p, addr, width)
	if !ok {
		inv := truncate(m.invalidValue, width)
		m.enqueue(MemAccess, addr, inv, access, nil)
		value = inv
	}
	if ok && m.cpuTrace != nil {
		payload, outcome := m.cpuTrace(access, addr, value)
		switch outcome {
		case OutcomeEvent:
			m.enqueue(MemTrace, addr, value, access, payload)
		case OutcomeError:
			m.enqueue(CallbackError, addr, value, access, payload)
		}
	}
	if m.probeWatch != nil {
		if id, data, hit := m.probeWatch(addr, access); hit {
			m.enqueue(Watchpoint, addr, uint32(id), access, data)
		}
	}
	return value
}

func (m *Memory) cpuWrite(addr uint32, width int, value uint32) {
	page := int(addr >> PageShift)
	access := m.accessWord(width, true)
	if page < 0 || page >= m.numPages {
		m.enqueue(MemBounds, addr, value, access, nil)
		return
	}
	p := &m.pages[page]
	ok := m.writeDispatch(p, addr, width, value)
	if !ok {
		m.enqueue(MemAccess, addr, value, access, nil)
	}
	if ok && m.cpuTrace != nil {
		payload, outcome := m.cpuTrace(access, addr, value)
		switch outcome {
		case OutcomeEvent:
			m.enqueue(MemTrace, addr, value, access, payload)
		case OutcomeError:
			m.enqueue(CallbackError, addr, value, access, payload)
		}
	}
	if m.probeWatch != nil {
		if id, data, hit := m.probeWatch(addr, access); hit {
			m.enqueue(Watchpoint, addr, uint32(id), access, data)
		}
	}
}

func (m *Memory) Read8(addr uint32) uint8   { return uint8(m.cpuRead(addr, AccessWidth8)) }
func (m *Memory) Read16(addr uint32) uint16 { return uint16(m.cpuRead(addr, AccessWidth16)) }
func (m *Memory) Read32(addr uint32) uint32 { return m.cpuRead(addr, AccessWidth32) }

func (m *Memory) Write8(addr uint32, v uint8)   { m.cpuWrite(addr, AccessWidth8, uint32(v)) }
func (m *Memory) Write16(addr uint32, v uint16) { m.cpuWrite(addr, AccessWidth16, uint32(v)) }
func (m *Memory) Write32(addr uint32, v uint32) { m.cpuWrite(addr, AccessWidth32, v) }

// ---- typed API (spec.md §4.B, bypasses bounds/access/trace/watchpoint events) ----

func (m *Memory) pageAt(addr uint32) (*pageEntry, error) {
	page := int(addr >> PageShift)
	if page < 0 || page >= m.numPages {
		return nil, fmt.Errorf("machine: address 0x%08x: %w", addr, ErrOutOfRange)
	}
	return &m.pages[page], nil
}

func (m *Memory) apiRead(addr uint32, width int) (uint32, error) {
	return m.apiReadTraced(addr, width, APIAccessRBlock)
}

// apiReadTraced is apiRead with the API trace subtype overridable, so
// callers like RB32 can report their own access kind instead of inheriting
// the plain block-read subtype.
func (m *Memory) apiReadTraced(addr uint32, width int, traceKind int) (uint32, error) {
	p, err := m.pageAt(addr)
	if err != nil {
		return 0, err
	}
	if p.canRead {
		v, _ := m.readDispatch(p, addr, width)
		m.traceAPI(traceKind, addr, uint32(width))
		return v, nil
	}
	if p.kind == pageMemory {
		v := readBE(p.data, addr&PageMask, width)
		m.traceAPI(traceKind, addr, uint32(width))
		return v, nil
	}
	return 0, fmt.Errorf("machine: address 0x%08x: %w", addr, ErrNoBuffer)
}

func (m *Memory) apiWrite(addr uint32, width int, value uint32) error {
	return m.apiWriteTraced(addr, width, value, APIAccessWBlock)
}

// apiWriteTraced is apiWrite with the API trace subtype overridable; see
// apiReadTraced.
func (m *Memory) apiWriteTraced(addr uint32, width int, value uint32, traceKind int) error {
	p, err := m.pageAt(addr)
	if err != nil {
		return err
	}
	if p.canWrite {
		m.writeDispatch(p, addr, width, value)
		m.traceAPI(traceKind, addr, uint32(width))
		return nil
	}
	if p.kind == pageMemory {
		writeBE(p.data, addr&PageMask, width, value)
		m.traceAPI(traceKind, addr, uint32(width))
		return nil
	}
	return fmt.Errorf("machine: address 0x%08x: %w", addr, ErrNoBuffer)
}

func (m *Memory) traceAPI(kind int, addr uint32, extra uint32) {
	if m.apiTrace != nil {
		m.apiTrace(kind, addr, extra)
	}
}

func (m *Memory) R8(addr uint32) (uint8, error) {
	v, err := m.apiRead(addr, AccessWidth8)
	return uint8(v), err
}
func (m *Memory) R16(addr uint32) (uint16, error) {
	v, err := m.apiRead(addr, AccessWidth16)
	return uint16(v), err
}
func (m *Memory) R32(addr uint32) (uint32, error) { return m.apiRead(addr, AccessWidth32) }

func (m *Memory) W8(addr uint32, v uint8) error   { return m.apiWrite(addr, AccessWidth8, uint32(v)) }
func (m *Memory) W16(addr uint32, v uint16) error { return m.apiWrite(addr, AccessWidth16, uint32(v)) }
func (m *Memory) W32(addr uint32, v uint32) error { return m.apiWrite(addr, AccessWidth32, v) }

// RB32 reads a big-endian 32-bit BCPL pointer, multiplying by 4.
func (m *Memory) RB32(addr uint32) (uint32, error) {
	v, err := m.apiReadTraced(addr, AccessWidth32, APIAccessRB32)
	if err != nil {
		return 0, err
	}
	return v << 2, nil
}

// WB32 writes a BCPL pointer, dividing by 4 before storing.
func (m *Memory) WB32(addr uint32, v uint32) error {
	return m.apiWriteTraced(addr, AccessWidth32, v>>2, APIAccessWB32)
}

// getRange returns the contiguous remainder of a region's buffer starting
// at addr, and whether addr's page is region-backed at all.
func (m *Memory) getRange(addr uint32) ([]byte, bool) {
	p, err := m.pageAt(addr)
	if err != nil || p.kind != pageMemory {
		return nil, false
	}
	off := int(addr & PageMask)
	if off >= len(p.data) {
		return nil, false
	}
	return p.data[off:], true
}

// SetBlock fills count bytes starting at addr with value.
func (m *Memory) SetBlock(addr uint32, value byte, count int) error {
	buf, ok := m.getRange(addr)
	if !ok || count > len(buf) {
		return fmt.Errorf("machine: set_block at 0x%08x: %w", addr, ErrOutOfRange)
	}
	for i := 0; i < count; i++ {
		buf[i] = value
	}
	m.traceAPI(APIAccessBSet, addr, uint32(count))
	return nil
}

// CopyBlock copies count bytes from src to dst, both region-backed.
func (m *Memory) CopyBlock(dst, src uint32, count int) error {
	dbuf, ok := m.getRange(dst)
	if !ok || count > len(dbuf) {
		return fmt.Errorf("machine: copy_block dst 0x%08x: %w", dst, ErrOutOfRange)
	}
	sbuf, ok := m.getRange(src)
	if !ok || count > len(sbuf) {
		return fmt.Errorf("machine: copy_block src 0x%08x: %w", src, ErrOutOfRange)
	}
	copy(dbuf[:count], sbuf[:count])
	m.traceAPI(APIAccessBCopy, dst, uint32(count))
	return nil
}

// RBlock returns a copy of count bytes starting at addr.
func (m *Memory) RBlock(addr uint32, count int) ([]byte, error) {
	buf, ok := m.getRange(addr)
	if !ok || count > len(buf) {
		return nil, fmt.Errorf("machine: r_block at 0x%08x: %w", addr, ErrOutOfRange)
	}
	out := make([]byte, count)
	copy(out, buf[:count])
	m.traceAPI(APIAccessRBlock, addr, uint32(count))
	return out, nil
}

// WBlock writes data starting at addr.
func (m *Memory) WBlock(addr uint32, data []byte) error {
	buf, ok := m.getRange(addr)
	if !ok || len(data) > len(buf) {
		return fmt.Errorf("machine: w_block at 0x%08x: %w", addr, ErrOutOfRange)
	}
	copy(buf, data)
	m.traceAPI(APIAccessWBlock, addr, uint32(len(data)))
	return nil
}

// RCString reads a NUL-terminated string bounded by the owning region's
// remainder.
func (m *Memory) RCString(addr uint32) (string, error) {
	buf, ok := m.getRange(addr)
	if !ok {
		return "", fmt.Errorf("machine: r_cstr at 0x%08x: %w", addr, ErrOutOfRange)
	}
	for i, b := range buf {
		if b == 0 {
			m.traceAPI(APIAccessRCstr, addr, uint32(i))
			return string(buf[:i]), nil
		}
	}
	return "", fmt.Errorf("machine: r_cstr at 0x%08x: unterminated", addr)
}

// WCString writes s followed by a NUL terminator.
func (m *Memory) WCString(addr uint32, s string) error {
	buf, ok := m.getRange(addr)
	if !ok || len(s)+1 > len(buf) {
		return fmt.Errorf("machine: w_cstr at 0x%08x: %w", addr, ErrOutOfRange)
	}
	copy(buf, s)
	buf[len(s)] = 0
	m.traceAPI(APIAccessWCstr, addr, uint32(len(s)))
	return nil
}

// RBString reads a length-prefixed ("B-string") string, max 255 bytes.
func (m *Memory) RBString(addr uint32) (string, error) {
	buf, ok := m.getRange(addr)
	if !ok || len(buf) < 1 {
		return "", fmt.Errorf("machine: r_bstr at 0x%08x: %w", addr, ErrOutOfRange)
	}
	n := int(buf[0])
	if 1+n > len(buf) {
		return "", fmt.Errorf("machine: r_bstr at 0x%08x: %w", addr, ErrOutOfRange)
	}
	m.traceAPI(APIAccessRBstr, addr, uint32(n))
	return string(buf[1 : 1+n]), nil
}

// WBString writes s as a length-prefixed string; len(s) must be <= 255.
func (m *Memory) WBString(addr uint32, s string) error {
	if len(s) > 255 {
		return ErrStringTooLong
	}
	buf, ok := m.getRange(addr)
	if !ok || 1+len(s) > len(buf) {
		return fmt.Errorf("machine: w_bstr at 0x%08x: %w", addr, ErrOutOfRange)
	}
	buf[0] = byte(len(s))
	copy(buf[1:], s)
	m.traceAPI(APIAccessWBstr, addr, uint32(len(s)))
	return nil
}

func readBE(buf []byte, off uint32, width int) uint32 {
	end := int(off) + width
	if end > len(buf) {
		// Past the owning region's buffer: read what exists, zero-pad the rest.
		var tmp [4]byte
		if int(off) < len(buf) {
			copy(tmp[:width], buf[off:])
		}
		return decodeBE(tmp[:width])
	}
	return decodeBE(buf[off:end])
}

func writeBE(buf []byte, off uint32, width int, value uint32) {
	end := int(off) + width
	if end > len(buf) {
		end = len(buf)
	}
	if int(off) >= end {
		return
	}
	var tmp [4]byte
	encodeBE(tmp[:width], value)
	copy(buf[off:end], tmp[:end-int(off)])
}

func decodeBE(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func encodeBE(b []byte, v uint32) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
