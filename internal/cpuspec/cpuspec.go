// Package cpuspec picks interpreter thread counts from the host CPU.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	LogicalCores     int
	PhysicalCores    int
	PerformanceCores int // 0 when the CPU is not a known hybrid design
}

// GetCPUSpec returns the host CPU specification
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:        cpuid.CPU.BrandName,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PhysicalCores:    cpuid.CPU.PhysicalCores,
		PerformanceCores: determinePerformanceCores(cpuid.CPU.BrandName),
	}
}

// GetOptimalThreadCount returns the recommended interpreter thread count.
// Hybrid CPUs use their performance cores only. The result never exceeds
// runtime.NumCPU, which honors container and VM limits.
func (c CPUSpec) GetOptimalThreadCount() int {
	available := runtime.NumCPU()

	threads := c.PerformanceCores
	if threads == 0 {
		threads = c.PhysicalCores
	}
	if threads == 0 {
		threads = c.LogicalCores
	}
	if threads <= 0 || threads > available {
		return available
	}
	return threads
}

// ThreadCount resolves a configured thread count. Zero or a value above the
// available CPUs selects the optimal count for this host.
func ThreadCount(configured int) int {
	available := runtime.NumCPU()
	if configured <= 0 || configured > available {
		return GetCPUSpec().GetOptimalThreadCount()
	}
	return configured
}

var (
	intelHybridRegex = regexp.MustCompile(`intel.*core.*i[3579]-(1[234])(\d)00`)
	intelUltraRegex  = regexp.MustCompile(`intel.*core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3})`)
	appleRegex       = regexp.MustCompile(`apple\s+(m[1-4])\s*(pro|max|ultra)?`)
)

// intelPCores maps the Core i tier digit of 12th to 14th gen parts to P-core counts
var intelPCores = map[string]int{
	"9": 8, "7": 8, "6": 6, "5": 6, "4": 6, "1": 4,
}

var ultraPCores = map[string]int{
	"285": 8, "265": 8, "255": 8, "245": 6, "235": 6, "225": 4,
}

var applePCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 6, "m3 max": 12, "m3 ultra": 24,
	"m4": 4, "m4 pro": 10, "m4 max": 12,
}

func determinePerformanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	if m := intelHybridRegex.FindStringSubmatch(brandName); m != nil {
		return intelPCores[m[2]]
	}
	if m := intelUltraRegex.FindStringSubmatch(brandName); m != nil {
		return ultraPCores[m[2]]
	}
	if m := appleRegex.FindStringSubmatch(brandName); m != nil {
		chip := m[1]
		if m[2] != "" {
			chip += " " + m[2]
		}
		return applePCores[chip]
	}
	return 0
}
