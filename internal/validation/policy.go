// Package validation implements the security checks applied to every tool
// call before it reaches the job executor: source size limits, the compiler
// flag denylist, and macro definition hygiene.
package validation

// DefaultMaxSourceBytes is the default ceiling on source text size.
const DefaultMaxSourceBytes = 1_000_000

// DefaultMaxDefinitions caps the number of caller-supplied macro definitions.
const DefaultMaxDefinitions = 64

// Policy is the set of limits a Validator enforces.
type Policy struct {
	MaxSourceBytes int      `yaml:"max_source_bytes" json:"max_source_bytes"`
	MaxDefinitions int      `yaml:"max_definitions" json:"max_definitions"`
	DeniedFlags    []string `yaml:"denied_flags" json:"denied_flags"`
}

// DefaultDeniedFlags lists options that could write outside the job's scope
// directory, load external code, pull in host files, or leak host details.
// Entries are single-dash; double-dash aliases are checked in their
// single-dash form.
var DefaultDeniedFlags = []string{
	// output redirection
	"-o", "--output", "--output=", "-MF", "-MT", "-MQ", "-MD", "-MMD", "-M", "-MM",
	"-save-temps", "-save-temps=", "-dumpdir", "-dumpbase", "-ftime-trace", "-ftime-trace=",
	"-fcrash-diagnostics-dir=", "-fmodules-cache-path=", "-fprofile-generate",
	"-fprofile-generate=", "-fprofile-instr-generate", "-fprofile-instr-generate=",
	"-fprofile-use=", "-fprofile-instr-use=", "-serialize-diagnostics",
	"-write-dependencies", "-write-user-dependencies", "-dependencies", "-user-dependencies",
	"-fsave-optimization-record", "-fsave-optimization-record=", "-foptimization-record-file=",
	// host file inclusion and search paths
	"-include", "-imacros", "-include-pch", "-I", "-iquote", "-isystem", "-idirafter",
	"-iprefix", "-iwithprefix", "-iwithprefixbefore", "-isysroot", "--sysroot", "--sysroot=",
	"-B", "-L", "-F", "-cxx-isystem", "-fembed-dir=", "-resource-dir", "-resource-dir=",
	"-fmodule-file=", "-fprebuilt-module-path=", "-fmodule-map-file=",
	"-iframework", "-iframeworkwithsysroot", "-isystem-after", "-ivfsoverlay", "-iembed-dir",
	"-embed-dir", "-include-directory", "-include-directory-after", "-library-directory",
	"-prefix", "-resource", "-config", "-config-system-dir=", "-config-user-dir=",
	"-gcc-toolchain", "-gcc-install-dir", "-fsanitize-ignorelist=", "-fsanitize-blacklist=",
	"-fprofile-list=",
	// linker and plugin loading
	"-l", "-Wl,", "-Wa,", "-Wp,", "-for-linker", "-force-link", "-Xlinker", "-Xassembler",
	"-Xpreprocessor", "-Xclang", "-Xanalyzer",
	"-fplugin=", "-fplugin-arg-", "-fpass-plugin=", "-load", "-fuse-ld=", "-specs=",
	"--ld-path=",
	// system information leakage
	"-v", "--verbose", "-###", "-print-search-dirs", "-print-file-name=",
	"-print-prog-name=", "-print-libgcc-file-name", "-print-resource-dir",
	"-print-target-triple", "-print-effective-triple", "--print-prog-name=",
	// debug info embeds host paths
	"-g", "-ggdb", "-gsplit-dwarf", "-gdwarf", "-gline-tables-only", "-gline-directives-only",
	"-gcodeview", "-gmodules", "-gembed-source", "-gfull", "-gused", "-glldb", "-gsce", "-gdbx",
	"-gstabs", "-gz", "-gz=", "-fstandalone-debug", "-fdebug-prefix-map=", "-ffile-prefix-map=",
	"-fmacro-prefix-map=", "-fdebug-compilation-dir=", "-fdebug-compilation-dir",
}

// DefaultPolicy returns the default validation policy.
func DefaultPolicy() Policy {
	denied := make([]string, len(DefaultDeniedFlags))
	copy(denied, DefaultDeniedFlags)
	return Policy{
		MaxSourceBytes: DefaultMaxSourceBytes,
		MaxDefinitions: DefaultMaxDefinitions,
		DeniedFlags:    denied,
	}
}
