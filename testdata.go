package main

// Test CIF content and attack path constants
// These eliminate magic values scattered throughout test files

const (
	// Minimal CIF payloads (the server treats them as opaque text)
	testCIFSimple = `data_test
_cell_length_a 25.0
_cell_length_b 25.0
_cell_length_c 6.8
`

	testCIFGenerated = `data_T3_BENZ_CHO_H-L2_BENZ_NH2_H-HCB_A-AA
_symmetry_space_group_name_H-M 'P 6/m'
_cell_length_a 22.3
`

	testCIFSecret = "data_secret\n_do_not_serve 1\n"

	// Generator payloads (final stdout line convention)
	testGenOutputWithLogs = "log line 1\nlog line 2\n{\"ok\":true,\"filename\":\"x.cif\"}\n"
	testGenOutputFailure  = `{"ok":false,"error":"Atoms too close"}`

	// Security test paths
	testPathTraversal     = "../../../etc/passwd"
	testPathURLEncoded    = "/generated_cofs/%2e%2e%2f%2e%2e%2fetc%2fpasswd"
	testPathDoubleEncoded = "/generated_cofs/%252e%252e%252fsecret.cif"
)
