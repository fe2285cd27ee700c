// Package config parses the flat key=value configuration files that drive a
// node: kvdb.conf, system/dblist, and cluster.conf. No ecosystem library in
// the retrieval pack parses this particular flat format (see DESIGN.md), so
// a small line scanner is hand-rolled instead.
package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
)

// Config is the parsed kvdb.conf plus the data-root layout derived from it.
type Config struct {
	Host              string
	Port              int
	ManagerPort       int
	ClusterPort       int
	DBsRootDir        string
	DefaultPartitions uint16
}

// ClusterAddr is this node's own address as it should appear in
// cluster.conf, used for node-to-node CLUSTER_INFO probing.
func (c *Config) ClusterAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.ClusterPort))
}

// ServiceAddr is the public, pre-ready-gated client port.
func (c *Config) ServiceAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ManagerAddr is the loopback-only admin port.
func (c *Config) ManagerAddr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.ManagerPort))
}

// DatabasePath returns the on-disk root for a database's partitioned
// engine files: <dbs-rootdir>/<db>/.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DBsRootDir, name)
}

// WALDir returns <dbs-rootdir>/wal/.
func (c *Config) WALDir() string {
	return filepath.Join(c.DBsRootDir, "wal")
}

// DBEntry is one block parsed from system/dblist.
type DBEntry struct {
	Name       string
	Partitions uint16
	Enable     bool
}

// LoadKVDBConf parses kvdb.conf's flat key=value pairs into a Config,
// applying defaults (service port 7078, manager port 7060) for anything
// left unset.
func LoadKVDBConf(path string) (*Config, error) {
	kv, err := parseFlatFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Host:              "0.0.0.0",
		Port:              7078,
		ManagerPort:       7060,
		ClusterPort:       7090,
		DBsRootDir:        "dbs",
		DefaultPartitions: 1,
	}

	if v, ok := kv["host"]; ok {
		cfg.Host = v
	}
	if v, ok := kv["port"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, kvdberr.Wrap(kvdberr.Config, "invalid port", err)
		}
		cfg.Port = n
	}
	if v, ok := kv["manager-port"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, kvdberr.Wrap(kvdberr.Config, "invalid manager-port", err)
		}
		cfg.ManagerPort = n
	}
	if v, ok := kv["cluster-port"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, kvdberr.Wrap(kvdberr.Config, "invalid cluster-port", err)
		}
		cfg.ClusterPort = n
	}
	if v, ok := kv["dbs-rootdir"]; ok {
		cfg.DBsRootDir = v
	}
	if v, ok := kv["dbs-partitions"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, kvdberr.Wrap(kvdberr.Config, "invalid dbs-partitions", err)
		}
		cfg.DefaultPartitions = uint16(n)
	}

	return cfg, nil
}

// LoadDBList parses system/dblist's per-database blocks. A block is a run
// of name=/rootdir=/partitions=/enable= lines; each name= line starts the
// next block, and blank lines and # comments are skipped.
func LoadDBList(path string) ([]DBEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, kvdberr.Wrap(kvdberr.Config, "failed to read dblist", err)
	}

	var entries []DBEntry
	var cur *DBEntry

	flush := func() {
		if cur != nil {
			entries = append(entries, *cur)
			cur = nil
		}
	}

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := splitKV(line)
		if !ok {
			return nil, kvdberr.New(kvdberr.Config, fmt.Sprintf("malformed dblist line: %q", line))
		}

		switch key {
		case "name":
			flush()
			cur = &DBEntry{Name: val, Partitions: 1, Enable: true}
		case "rootdir":
			// rootdir is accepted for config-file compatibility, but its
			// value is ignored: a database's path is always
			// Config.DatabasePath(name), under dbs-rootdir.
		case "partitions":
			if cur == nil {
				return nil, kvdberr.New(kvdberr.Config, "partitions before name in dblist")
			}
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, kvdberr.Wrap(kvdberr.Config, "invalid partitions in dblist", err)
			}
			cur.Partitions = uint16(n)
		case "enable":
			if cur == nil {
				return nil, kvdberr.New(kvdberr.Config, "enable before name in dblist")
			}
			cur.Enable = val == "true" || val == "1"
		default:
			return nil, kvdberr.New(kvdberr.Config, fmt.Sprintf("unknown dblist key: %q", key))
		}
	}
	flush()

	return entries, nil
}

// LoadClusterConf parses cluster.conf's <db>.<n>=host:port lines into a
// peer descriptor keyed by database name.
func LoadClusterConf(path string) (map[string][]string, error) {
	kv, err := parseFlatFile(path)
	if err != nil {
		return nil, err
	}

	descriptor := make(map[string][]string)
	for key, val := range kv {
		dot := strings.LastIndex(key, ".")
		if dot < 0 {
			return nil, kvdberr.New(kvdberr.Config, fmt.Sprintf("malformed cluster.conf key: %q", key))
		}
		db := key[:dot]
		descriptor[db] = append(descriptor[db], val)
	}
	return descriptor, nil
}

// parseFlatFile reads a '#'-comment flat key=value file into a map,
// preserving last-value-wins on duplicate keys.
func parseFlatFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, kvdberr.Wrap(kvdberr.Config, fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	kv := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := splitKV(line)
		if !ok {
			return nil, kvdberr.New(kvdberr.Config, fmt.Sprintf("malformed line in %s: %q", path, line))
		}
		kv[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, kvdberr.Wrap(kvdberr.Config, fmt.Sprintf("failed to read %s", path), err)
	}
	return kv, nil
}

func splitKV(line string) (key, val string, ok bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}
