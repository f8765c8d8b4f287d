// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package executor

import "testing"

func TestQuoteInvocationPlainCommandSingleQuotesEachArg(t *testing.T) {
	got, err := QuoteInvocation("ls", []string{"-la", "it's a dir"})
	if err != nil {
		t.Fatalf("QuoteInvocation: %v", err)
	}
	want := `'ls' '-la' 'it'\''s a dir'`
	if got != want {
		t.Fatalf("QuoteInvocation = %q, want %q", got, want)
	}
}

func TestQuoteInvocationDashCIsDoubleQuotedAsOneUnit(t *testing.T) {
	for _, cmd := range []string{"python", "python3", "bash", "sh"} {
		got, err := QuoteInvocation(cmd, []string{"-c", `print("hi")`})
		if err != nil {
			t.Fatalf("QuoteInvocation(%s): %v", cmd, err)
		}
		want := cmd + ` -c "print(\"hi\")"`
		if got != want {
			t.Errorf("QuoteInvocation(%s, -c) = %q, want %q", cmd, got, want)
		}
	}
}

func TestQuoteInvocationDashCEscapesDollarAndBackslash(t *testing.T) {
	got, err := QuoteInvocation("python3", []string{"-c", `print($HOME, "\n")`})
	if err != nil {
		t.Fatalf("QuoteInvocation: %v", err)
	}
	want := `python3 -c "print(\$HOME, \"\\n\")"`
	if got != want {
		t.Fatalf("QuoteInvocation = %q, want %q", got, want)
	}
}

func TestQuoteInvocationRequiresDashCAsFirstArgToTrigger(t *testing.T) {
	// "python3 script.py" is a plain invocation, not a -c payload, even
	// though the command name matches one of the special-cased interpreters.
	got, err := QuoteInvocation("python3", []string{"script.py"})
	if err != nil {
		t.Fatalf("QuoteInvocation: %v", err)
	}
	want := `'python3' 'script.py'`
	if got != want {
		t.Fatalf("QuoteInvocation = %q, want %q", got, want)
	}
}

func TestSingleQuoteEmptyString(t *testing.T) {
	if got := singleQuote(""); got != "''" {
		t.Fatalf("singleQuote(\"\") = %q, want %q", got, "''")
	}
}

func TestEscapeForDisplayEscapesMetacharacters(t *testing.T) {
	got := escapeForDisplay(`echo "$HOME" && `+"`whoami`"+` \ done`)
	want := `echo \"\$HOME\" && ` + "\\`whoami\\`" + ` \\ done`
	if got != want {
		t.Fatalf("escapeForDisplay = %q, want %q", got, want)
	}
}
