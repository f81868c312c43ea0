package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	envVarWebRTCUDPPortMin             = "WEBRTC_UDP_PORT_MIN"
	envVarWebRTCUDPPortMax             = "WEBRTC_UDP_PORT_MAX"
	envVarWebRTCUDPListenIP            = "WEBRTC_UDP_LISTEN_IP"
	envVarWebRTCNAT1To1IPs             = "WEBRTC_NAT_1TO1_IPS"
	envVarWebRTCNAT1To1IPCandidateType = "WEBRTC_NAT_1TO1_IP_CANDIDATE_TYPE"

	flagWebRTCUDPPortMin             = "webrtc-udp-port-min"
	flagWebRTCUDPPortMax             = "webrtc-udp-port-max"
	flagWebRTCUDPListenIP            = "webrtc-udp-listen-ip"
	flagWebRTCNAT1To1IPs             = "webrtc-nat-1to1-ips"
	flagWebRTCNAT1To1IPCandidateType = "webrtc-nat-1to1-ip-candidate-type"

	DefaultWebRTCUDPListenIP = "0.0.0.0"
)

type NAT1To1IPCandidateType string

const (
	NAT1To1CandidateTypeHost  NAT1To1IPCandidateType = "host"
	NAT1To1CandidateTypeSrflx NAT1To1IPCandidateType = "srflx"
)

// UDPPortRange is an inclusive ephemeral port range for ICE sockets.
type UDPPortRange struct {
	Min uint16
	Max uint16
}

var errPortRangeHalfSet = errors.New("port min and max must be set together (or both unset)")

// networkSettings holds the raw ICE socket options between env/flag parsing
// and validation.
type networkSettings struct {
	portMin, portMax uint
	listenIP         string
	natIPs           string
	natCandidateType string
}

func networkSettingsFromEnv(lookup func(string) (string, bool)) (networkSettings, error) {
	ns := networkSettings{
		listenIP:         envOrDefault(lookup, envVarWebRTCUDPListenIP, DefaultWebRTCUDPListenIP),
		natIPs:           envOrDefault(lookup, envVarWebRTCNAT1To1IPs, ""),
		natCandidateType: envOrDefault(lookup, envVarWebRTCNAT1To1IPCandidateType, string(NAT1To1CandidateTypeHost)),
	}
	for _, p := range []struct {
		env string
		dst *uint
	}{
		{envVarWebRTCUDPPortMin, &ns.portMin},
		{envVarWebRTCUDPPortMax, &ns.portMax},
	} {
		raw, ok := lookup(p.env)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		port, err := parsePortString(raw)
		if err != nil {
			return networkSettings{}, fmt.Errorf("invalid %s %q: %w", p.env, raw, err)
		}
		*p.dst = uint(port)
	}
	return ns, nil
}

func (ns *networkSettings) register(fs *flag.FlagSet) {
	fs.UintVar(&ns.portMin, flagWebRTCUDPPortMin, ns.portMin, "Min UDP port for ICE sockets (0 = unset; env "+envVarWebRTCUDPPortMin+")")
	fs.UintVar(&ns.portMax, flagWebRTCUDPPortMax, ns.portMax, "Max UDP port for ICE sockets (0 = unset; env "+envVarWebRTCUDPPortMax+")")
	fs.StringVar(&ns.listenIP, flagWebRTCUDPListenIP, ns.listenIP, "Local IP that ICE UDP sockets bind to (env "+envVarWebRTCUDPListenIP+")")
	fs.StringVar(&ns.natIPs, flagWebRTCNAT1To1IPs, ns.natIPs, "Comma-separated public IPs advertised in ICE candidates (env "+envVarWebRTCNAT1To1IPs+")")
	fs.StringVar(&ns.natCandidateType, flagWebRTCNAT1To1IPCandidateType, ns.natCandidateType, "Candidate type for NAT 1:1 IPs: host or srflx (env "+envVarWebRTCNAT1To1IPCandidateType+")")
}

// apply validates the settings and stores them on cfg.
func (ns networkSettings) apply(cfg *Config) error {
	portRange, err := ns.portRange()
	if err != nil {
		return err
	}
	cfg.WebRTCUDPPortRange = portRange

	ip := net.ParseIP(strings.TrimSpace(ns.listenIP))
	if ip == nil {
		return fmt.Errorf("invalid %s %q", settingName(envVarWebRTCUDPListenIP, flagWebRTCUDPListenIP), ns.listenIP)
	}
	cfg.WebRTCUDPListenIP = ip

	if strings.TrimSpace(ns.natIPs) != "" {
		ips, err := parseIPList(ns.natIPs)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", settingName(envVarWebRTCNAT1To1IPs, flagWebRTCNAT1To1IPs), ns.natIPs, err)
		}
		cfg.WebRTCNAT1To1IPs = ips
	}

	candidateType := ns.natCandidateType
	if strings.TrimSpace(candidateType) == "" {
		candidateType = string(NAT1To1CandidateTypeHost)
	}
	ct, err := parseCandidateType(candidateType)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", settingName(envVarWebRTCNAT1To1IPCandidateType, flagWebRTCNAT1To1IPCandidateType), candidateType, err)
	}
	cfg.WebRTCNAT1To1IPCandidateType = ct
	return nil
}

func (ns networkSettings) portRange() (*UDPPortRange, error) {
	if ns.portMin == 0 && ns.portMax == 0 {
		return nil, nil
	}
	if ns.portMin == 0 || ns.portMax == 0 {
		return nil, fmt.Errorf("%s, %s: %w",
			settingName(envVarWebRTCUDPPortMin, flagWebRTCUDPPortMin),
			settingName(envVarWebRTCUDPPortMax, flagWebRTCUDPPortMax),
			errPortRangeHalfSet)
	}
	lo, err := parsePortUint(ns.portMin)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", settingName(envVarWebRTCUDPPortMin, flagWebRTCUDPPortMin), err)
	}
	hi, err := parsePortUint(ns.portMax)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", settingName(envVarWebRTCUDPPortMax, flagWebRTCUDPPortMax), err)
	}
	if lo > hi {
		return nil, fmt.Errorf("ICE UDP port range min (%d) must be <= max (%d)", lo, hi)
	}
	return &UDPPortRange{Min: lo, Max: hi}, nil
}

func settingName(env, flagName string) string {
	return env + "/--" + flagName
}

// IsUnspecifiedIP reports whether ip binds every interface.
func IsUnspecifiedIP(ip net.IP) bool {
	return ip == nil || ip.IsUnspecified()
}

func parsePortString(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return parsePortUint(uint(v))
}

func parsePortUint(v uint) (uint16, error) {
	if v < 1 || v > 65535 {
		return 0, fmt.Errorf("port %d out of range (1-65535)", v)
	}
	return uint16(v), nil
}

func parseCandidateType(s string) (NAT1To1IPCandidateType, error) {
	ct := NAT1To1IPCandidateType(strings.ToLower(strings.TrimSpace(s)))
	if ct != NAT1To1CandidateTypeHost && ct != NAT1To1CandidateTypeSrflx {
		return "", fmt.Errorf("unknown candidate type %q", s)
	}
	return ct, nil
}

// parseIPList normalizes a comma-separated IP list. At least one IP is
// required.
func parseIPList(s string) ([]string, error) {
	parts := splitCommaSeparated(s)
	if len(parts) == 0 {
		return nil, errors.New("must include at least one IP")
	}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		ip := net.ParseIP(part)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP %q", part)
		}
		out = append(out, ip.String())
	}
	return out, nil
}
