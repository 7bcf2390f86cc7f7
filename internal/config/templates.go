package config

// GlobalConfigTemplate is the default template for ~/.config/modemcheck/config.yaml.
// It includes comments explaining each option.
const GlobalConfigTemplate = `# modemcheck global configuration
# Location: ~/.config/modemcheck/config.yaml

# Schema version (required)
version: 1

# Transmitter/receiver executable (relative paths resolve against the work dir)
rzsz: ../build/tools/rzsz

# Virtual serial link provider
link:
  provider: socat
  command: [socat, -d, -d, "pty,raw,echo=0", "pty,raw,echo=0"]
  # Bounded wait for the provider to announce both endpoints
  wait: 1s
  # Open both endpoints and pass a marker byte across before running
  probe: false

# Line settings forwarded verbatim to both sides
serial:
  speed: 115200
  stop_bits: 1

timing:
  # Transmitter head start before the receiver is launched
  settle: 1s
  # Optional explicit readiness signal searched for in the emission log
  # ready_pattern: "waiting for receiver"
  ready_timeout: 5s
  # Bound on the receiver invocation (0 = wait forever)
  # receive_timeout: 2m

# Result comparison: diff (external) or bytes (in-process)
comparator:
  kind: diff
  command: [diff]

# Run history
history:
  disabled: false
  # path: ~/.local/share/modemcheck/history.db
`

// ProjectConfigTemplate is the default template for modemcheck.yaml.
// It includes commented examples for all configuration options.
const ProjectConfigTemplate = `# modemcheck project configuration
# Location: modemcheck.yaml (test directory)

# Schema version (required)
version: 1

# Directory holding files/, expected_results/ and tests_results/
# work_dir: .

# Transmitter/receiver executable override
# rzsz: ../build-linux-release/tools/rzsz

# Per-scenario output files (emptied at the start of each run)
results_dir: tests_results

# Log files (truncated at the start of each run)
logs:
  emission: emission.log
  reception: reception.log
  link: socat.log
  harness: tests.log

# Environment passed to the transfer processes
# env:
#   LD_LIBRARY_PATH: ${HOME}/lib
#   TOKEN:
#     from_file: ~/.secrets/token

# Built-in matrix to run
matrix: nominal

# Or an explicit, ordered matrix (takes precedence over matrix)
# scenarios:
#   - name: xmodem-checksum-1254
#     protocol: xmodem-checksum
#     source: files/test_01254bytes.txt
#     expected: expected_results/test_blksize_128_01280bytes.txt
#     result: tests_results/2-test_01254bytes.txt
`

// ProjectConfigMinimalTemplate is a minimal template without comments.
const ProjectConfigMinimalTemplate = `version: 1
matrix: nominal
`
