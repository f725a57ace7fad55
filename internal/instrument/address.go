package instrument

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolveAddress turns user input into a VISA resource string. A bare
// number such as "10" becomes "GPIB::10::INSTR"; anything containing "::"
// is passed through unchanged.
func ResolveAddress(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("empty instrument address")
	}
	if strings.Contains(s, "::") {
		return s, nil
	}
	if _, err := strconv.Atoi(s); err != nil {
		return "", fmt.Errorf("invalid GPIB address %q", input)
	}
	return fmt.Sprintf("GPIB::%s::INSTR", s), nil
}

// GPIBAddress holds the bus addresses parsed from a GPIB resource string.
type GPIBAddress struct {
	Board     int
	Primary   int
	Secondary int // -1 when absent
}

// ParseGPIBAddress parses "GPIB[board]::primary[::secondary]::INSTR",
// optionally prefixed by a "visa://host/" remote part.
func ParseGPIBAddress(resource string) (GPIBAddress, error) {
	addr := GPIBAddress{Secondary: -1}
	s := resource
	if strings.HasPrefix(strings.ToLower(s), "visa://") {
		if i := strings.Index(s[len("visa://"):], "/"); i >= 0 {
			s = s[len("visa://")+i+1:]
		}
	}
	parts := strings.Split(s, "::")
	if len(parts) < 2 || !strings.HasPrefix(strings.ToUpper(parts[0]), "GPIB") {
		return addr, fmt.Errorf("not a GPIB resource: %q", resource)
	}
	if board := parts[0][len("GPIB"):]; board != "" {
		n, err := strconv.Atoi(board)
		if err != nil {
			return addr, fmt.Errorf("invalid GPIB board in %q", resource)
		}
		addr.Board = n
	}
	primary, err := strconv.Atoi(parts[1])
	if err != nil || !isPrimaryAddressValid(primary) {
		return addr, fmt.Errorf("invalid primary address in %q (must be 0-30)", resource)
	}
	addr.Primary = primary
	if len(parts) > 2 && !strings.EqualFold(parts[2], "INSTR") {
		secondary, err := strconv.Atoi(parts[2])
		if err != nil || !isSecondaryAddressValid(secondary) {
			return addr, fmt.Errorf("invalid secondary address in %q (must be 96-126)", resource)
		}
		addr.Secondary = secondary
	}
	return addr, nil
}

func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}
