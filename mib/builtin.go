/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package mib

// builtinNames covers the MIB-II groups and common scalars named in
// §6, plus the listed enterprise roots. Not exhaustive — callers load
// more via Resolver.Register.
var builtinNames = map[string]string{
	// groups
	"system":     "1.3.6.1.2.1.1",
	"interfaces": "1.3.6.1.2.1.2",
	"if":         "1.3.6.1.2.1.2",
	"ifX":        "1.3.6.1.2.1.31",
	"ip":         "1.3.6.1.2.1.4",
	"icmp":       "1.3.6.1.2.1.5",
	"tcp":        "1.3.6.1.2.1.6",
	"udp":        "1.3.6.1.2.1.7",
	"snmp":       "1.3.6.1.2.1.11",

	// system scalars
	"sysDescr":    "1.3.6.1.2.1.1.1",
	"sysObjectID": "1.3.6.1.2.1.1.2",
	"sysUpTime":   "1.3.6.1.2.1.1.3",
	"sysContact":  "1.3.6.1.2.1.1.4",
	"sysName":     "1.3.6.1.2.1.1.5",
	"sysLocation": "1.3.6.1.2.1.1.6",
	"sysServices": "1.3.6.1.2.1.1.7",

	// interfaces table columns (ifTable, ifEntry = .2.2.1)
	"ifNumber":       "1.3.6.1.2.1.2.1",
	"ifDescr":        "1.3.6.1.2.1.2.2.1.2",
	"ifType":         "1.3.6.1.2.1.2.2.1.3",
	"ifMtu":          "1.3.6.1.2.1.2.2.1.4",
	"ifSpeed":        "1.3.6.1.2.1.2.2.1.5",
	"ifPhysAddress":  "1.3.6.1.2.1.2.2.1.6",
	"ifAdminStatus":  "1.3.6.1.2.1.2.2.1.7",
	"ifOperStatus":   "1.3.6.1.2.1.2.2.1.8",
	"ifInOctets":     "1.3.6.1.2.1.2.2.1.10",
	"ifOutOctets":    "1.3.6.1.2.1.2.2.1.16",

	// ifXTable (high-capacity counters, RFC 2863)
	"ifName":        "1.3.6.1.2.1.31.1.1.1.1",
	"ifHCInOctets":  "1.3.6.1.2.1.31.1.1.1.6",
	"ifHCOutOctets": "1.3.6.1.2.1.31.1.1.1.10",
	"ifHighSpeed":   "1.3.6.1.2.1.31.1.1.1.15",
	"ifAlias":       "1.3.6.1.2.1.31.1.1.1.18",

	// enterprise roots
	"enterprises": "1.3.6.1.4.1",
	"cisco":       "1.3.6.1.4.1.9",
	"mikrotik":    "1.3.6.1.4.1.14988",
	"juniper":     "1.3.6.1.4.1.2636",
	"hp":          "1.3.6.1.4.1.11",
	"netSnmp":     "1.3.6.1.4.1.8072",
}
