package languages

import (
	"regexp"
	"strings"
	"time"

	"github.com/itstheanurag/coderunner/internal/sandbox"
)

// The submission is included into the shim after the usual competitive
// headers, so it may rely on bits/stdc++.h and using namespace std. Argument
// types are taken from the entry point's signature: one parameter receives
// the whole input, several receive the elements of an array input.
const cppShim = `#include <bits/stdc++.h>
using namespace std;

#include "solution.cpp"

namespace coderunner {

[[noreturn]] inline void fail(const std::string& msg) {
    throw std::runtime_error(msg);
}

struct Json {
    enum Kind { Null, Bool, Number, String, Array, Object };
    Kind kind = Null;
    bool flag = false;
    std::string text;
    std::vector<Json> items;
    std::vector<std::string> keys;
};

class Parser {
public:
    explicit Parser(const std::string& s) : s_(s) {}

    Json document() {
        Json v = value();
        space();
        if (pos_ != s_.size()) fail("invalid input: trailing data");
        return v;
    }

private:
    const std::string& s_;
    size_t pos_ = 0;

    void space() {
        while (pos_ < s_.size() && std::isspace(static_cast<unsigned char>(s_[pos_]))) pos_++;
    }
    char peek() const { return pos_ < s_.size() ? s_[pos_] : '\0'; }
    char next() {
        if (pos_ >= s_.size()) fail("invalid input: unexpected end");
        return s_[pos_++];
    }
    void word(const char* w) {
        size_t n = std::strlen(w);
        if (s_.compare(pos_, n, w) != 0) fail(std::string("invalid input: expected ") + w);
        pos_ += n;
    }

    Json value() {
        space();
        Json v;
        switch (peek()) {
        case '{': {
            v.kind = Json::Object;
            pos_++;
            space();
            if (peek() == '}') { pos_++; return v; }
            while (true) {
                space();
                if (peek() != '"') fail("invalid input: expected a string key");
                v.keys.push_back(str());
                space();
                if (next() != ':') fail("invalid input: expected ':'");
                v.items.push_back(value());
                space();
                char c = next();
                if (c == '}') return v;
                if (c != ',') fail("invalid input: expected ',' or '}'");
            }
        }
        case '[': {
            v.kind = Json::Array;
            pos_++;
            space();
            if (peek() == ']') { pos_++; return v; }
            while (true) {
                v.items.push_back(value());
                space();
                char c = next();
                if (c == ']') return v;
                if (c != ',') fail("invalid input: expected ',' or ']'");
            }
        }
        case '"':
            v.kind = Json::String;
            v.text = str();
            return v;
        case 't': word("true"); v.kind = Json::Bool; v.flag = true; return v;
        case 'f': word("false"); v.kind = Json::Bool; return v;
        case 'n': word("null"); return v;
        default: {
            size_t start = pos_;
            while (pos_ < s_.size() && std::strchr("+-0123456789.eE", s_[pos_]) != nullptr && s_[pos_] != '\0') pos_++;
            if (start == pos_) fail("invalid input: unexpected character");
            v.kind = Json::Number;
            v.text = s_.substr(start, pos_ - start);
            return v;
        }
        }
    }

    std::string str() {
        pos_++;
        std::string out;
        while (true) {
            char c = next();
            if (c == '"') return out;
            if (c != '\\') { out += c; continue; }
            char e = next();
            switch (e) {
            case '"': case '\\': case '/': out += e; break;
            case 'b': out += '\b'; break;
            case 'f': out += '\f'; break;
            case 'n': out += '\n'; break;
            case 'r': out += '\r'; break;
            case 't': out += '\t'; break;
            case 'u': {
                if (pos_ + 4 > s_.size()) fail("invalid input: truncated unicode escape");
                unsigned cp = std::stoul(s_.substr(pos_, 4), nullptr, 16);
                pos_ += 4;
                if (cp < 0x80) {
                    out += static_cast<char>(cp);
                } else if (cp < 0x800) {
                    out += static_cast<char>(0xC0 | (cp >> 6));
                    out += static_cast<char>(0x80 | (cp & 0x3F));
                } else {
                    out += static_cast<char>(0xE0 | (cp >> 12));
                    out += static_cast<char>(0x80 | ((cp >> 6) & 0x3F));
                    out += static_cast<char>(0x80 | (cp & 0x3F));
                }
                break;
            }
            default: fail("invalid input: bad escape");
            }
        }
    }
};

inline void expect(const Json& j, Json::Kind kind, const char* what) {
    if (j.kind != kind) fail(std::string("invalid input: expected ") + what);
}

inline bool integral(const std::string& text) {
    return text.find_first_of(".eE") == std::string::npos;
}

template <class T, class = void> struct Decode;

template <> struct Decode<bool> {
    static bool from(const Json& j) { expect(j, Json::Bool, "a boolean"); return j.flag; }
};

template <class T>
struct Decode<T, std::enable_if_t<std::is_integral_v<T> && !std::is_same_v<T, bool> && !std::is_same_v<T, char>>> {
    static T from(const Json& j) {
        expect(j, Json::Number, "a number");
        if (integral(j.text)) return static_cast<T>(std::stoll(j.text));
        return static_cast<T>(std::stold(j.text));
    }
};

template <class T>
struct Decode<T, std::enable_if_t<std::is_floating_point_v<T>>> {
    static T from(const Json& j) { expect(j, Json::Number, "a number"); return static_cast<T>(std::stold(j.text)); }
};

template <> struct Decode<char> {
    static char from(const Json& j) {
        expect(j, Json::String, "a single character");
        if (j.text.size() != 1) fail("invalid input: expected a single character");
        return j.text[0];
    }
};

template <> struct Decode<std::string> {
    static std::string from(const Json& j) { expect(j, Json::String, "a string"); return j.text; }
};

template <class T> struct Decode<std::vector<T>> {
    static std::vector<T> from(const Json& j) {
        expect(j, Json::Array, "an array");
        std::vector<T> out;
        out.reserve(j.items.size());
        for (const auto& item : j.items) out.push_back(Decode<T>::from(item));
        return out;
    }
};

template <class T> struct Decode<std::set<T>> {
    static std::set<T> from(const Json& j) {
        expect(j, Json::Array, "an array");
        std::set<T> out;
        for (const auto& item : j.items) out.insert(Decode<T>::from(item));
        return out;
    }
};

template <class K>
K decodeKey(const std::string& key) {
    if constexpr (std::is_same_v<K, std::string>) {
        return key;
    } else {
        return Decode<K>::from(Parser(key).document());
    }
}

template <class Map>
Map decodeMap(const Json& j) {
    expect(j, Json::Object, "an object");
    Map out;
    for (size_t i = 0; i < j.items.size(); i++) {
        out.emplace(decodeKey<typename Map::key_type>(j.keys[i]), Decode<typename Map::mapped_type>::from(j.items[i]));
    }
    return out;
}

template <class K, class V> struct Decode<std::map<K, V>> {
    static std::map<K, V> from(const Json& j) { return decodeMap<std::map<K, V>>(j); }
};

template <class K, class V> struct Decode<std::unordered_map<K, V>> {
    static std::unordered_map<K, V> from(const Json& j) { return decodeMap<std::unordered_map<K, V>>(j); }
};

template <class T, class = void> struct Encode;

inline void quote(std::ostream& out, const std::string& s) {
    out << '"';
    for (unsigned char c : s) {
        switch (c) {
        case '"': out << "\\\""; break;
        case '\\': out << "\\\\"; break;
        case '\n': out << "\\n"; break;
        case '\r': out << "\\r"; break;
        case '\t': out << "\\t"; break;
        case '\b': out << "\\b"; break;
        case '\f': out << "\\f"; break;
        default:
            if (c < 0x20) {
                char buf[8];
                std::snprintf(buf, sizeof buf, "\\u%04x", c);
                out << buf;
            } else {
                out << static_cast<char>(c);
            }
        }
    }
    out << '"';
}

template <> struct Encode<bool> {
    static void to(std::ostream& out, bool v) { out << (v ? "true" : "false"); }
};

template <class T>
struct Encode<T, std::enable_if_t<std::is_integral_v<T> && !std::is_same_v<T, bool> && !std::is_same_v<T, char>>> {
    static void to(std::ostream& out, T v) { out << +v; }
};

template <class T>
struct Encode<T, std::enable_if_t<std::is_floating_point_v<T>>> {
    static void to(std::ostream& out, T v) {
        if (!std::isfinite(v)) fail("result contains a non-finite number");
        std::ostringstream s;
        s << std::setprecision(std::numeric_limits<T>::max_digits10) << v;
        out << s.str();
    }
};

template <> struct Encode<char> {
    static void to(std::ostream& out, char v) { quote(out, std::string(1, v)); }
};

template <> struct Encode<std::string> {
    static void to(std::ostream& out, const std::string& v) { quote(out, v); }
};

template <> struct Encode<const char*> {
    static void to(std::ostream& out, const char* v) { quote(out, v); }
};

template <class Seq>
void encodeSeq(std::ostream& out, const Seq& seq) {
    out << '[';
    bool first = true;
    for (const auto& item : seq) {
        if (!first) out << ',';
        first = false;
        Encode<typename Seq::value_type>::to(out, item);
    }
    out << ']';
}

template <class Map>
void encodeMap(std::ostream& out, const Map& m) {
    out << '{';
    bool first = true;
    for (const auto& [k, v] : m) {
        if (!first) out << ',';
        first = false;
        if constexpr (std::is_same_v<typename Map::key_type, std::string>) {
            quote(out, k);
        } else {
            std::ostringstream key;
            Encode<typename Map::key_type>::to(key, k);
            quote(out, key.str());
        }
        out << ':';
        Encode<typename Map::mapped_type>::to(out, v);
    }
    out << '}';
}

template <class T> struct Encode<std::vector<T>> {
    static void to(std::ostream& out, const std::vector<T>& v) { encodeSeq(out, v); }
};

template <class T> struct Encode<std::deque<T>> {
    static void to(std::ostream& out, const std::deque<T>& v) { encodeSeq(out, v); }
};

template <class T> struct Encode<std::set<T>> {
    static void to(std::ostream& out, const std::set<T>& v) { encodeSeq(out, v); }
};

template <class T> struct Encode<std::unordered_set<T>> {
    static void to(std::ostream& out, const std::unordered_set<T>& v) { encodeSeq(out, v); }
};

template <class K, class V> struct Encode<std::map<K, V>> {
    static void to(std::ostream& out, const std::map<K, V>& v) { encodeMap(out, v); }
};

template <class K, class V> struct Encode<std::unordered_map<K, V>> {
    static void to(std::ostream& out, const std::unordered_map<K, V>& v) { encodeMap(out, v); }
};

template <class A, class B> struct Encode<std::pair<A, B>> {
    static void to(std::ostream& out, const std::pair<A, B>& v) {
        out << '[';
        Encode<A>::to(out, v.first);
        out << ',';
        Encode<B>::to(out, v.second);
        out << ']';
    }
};

template <class... A, size_t... I>
std::tuple<std::decay_t<A>...> decodeEach(const Json& in, std::index_sequence<I...>) {
    return std::tuple<std::decay_t<A>...>(Decode<std::decay_t<A>>::from(in.items[I])...);
}

template <class... A>
std::tuple<std::decay_t<A>...> decodeArgs(const Json& in) {
    if constexpr (sizeof...(A) == 0) {
        return {};
    } else if constexpr (sizeof...(A) == 1) {
        return std::tuple<std::decay_t<A>...>(Decode<std::decay_t<A>>::from(in)...);
    } else {
        if (in.kind != Json::Array || in.items.size() != sizeof...(A)) {
            fail("entry point takes " + std::to_string(sizeof...(A)) + " parameters; pass them as an array");
        }
        return decodeEach<A...>(in, std::index_sequence_for<A...>{});
    }
}

template <class R, class Call>
std::string finish(Call&& call) {
    std::ostringstream out;
    if constexpr (std::is_void_v<R>) {
        call();
        out << "null";
    } else {
        const auto result = call();
        Encode<std::decay_t<R>>::to(out, result);
    }
    return out.str();
}

template <class R, class... A>
std::string run(R (*fn)(A...), const Json& in) {
    auto args = decodeArgs<A...>(in);
    return finish<R>([&] { return std::apply([&](auto&... xs) { return fn(xs...); }, args); });
}

template <class C, class R, class... A>
std::string run(R (C::*fn)(A...), const Json& in) {
    auto args = decodeArgs<A...>(in);
    C obj;
    return finish<R>([&] { return std::apply([&](auto&... xs) { return (obj.*fn)(xs...); }, args); });
}

template <class C, class R, class... A>
std::string run(R (C::*fn)(A...) const, const Json& in) {
    auto args = decodeArgs<A...>(in);
    const C obj{};
    return finish<R>([&] { return std::apply([&](auto&... xs) { return (obj.*fn)(xs...); }, args); });
}

}  // namespace coderunner

int main() {
    std::string raw((std::istreambuf_iterator<char>(std::cin)), std::istreambuf_iterator<char>());
    coderunner::Json input;
    if (raw.find_first_not_of(" \t\r\n") != std::string::npos) {
        input = coderunner::Parser(raw).document();
    }
    std::string encoded = coderunner::run(TARGET, input);
    std::cout << "\nMARKER\n" << encoded << "\n" << std::flush;
    return 0;
}
`

var cppSolutionClass = regexp.MustCompile(`\b(class|struct)\s+Solution\b`)

func newCppAdapter() Adapter {
	return &scriptAdapter{
		lang: Language{
			ID:         "cpp",
			Name:       "C++17",
			Aliases:    []string{"c++", "cxx"},
			EntryPoint: "solve",
			Config: RuntimeConfig{
				Image:          "gcc:13",
				SourceFile:     "solution.cpp",
				CompileCommand: []string{"g++", "-std=c++17", "-O2", "-pipe", "-o", "solution", "main.cpp"},
				CompileTimeout: 60 * time.Second,
				RunCommand:     []string{"./solution"},
			},
			Limits: sandbox.Limits{
				CPUTime:  2 * time.Second,
				WallTime: 5 * time.Second,
				MemoryMB: 256,
			},
		},
		entryExpr: func(entry string) *regexp.Regexp {
			return regexp.MustCompile(`\b` + regexp.QuoteMeta(entry) + `\s*\(`)
		},
		render: func(code, entry string) []sandbox.File {
			// qualified so using namespace std cannot pull in std::merge and friends
			target := "&::" + entry
			if cppSolutionClass.MatchString(code) {
				target = "&Solution::" + entry
			}
			return []sandbox.File{
				{Name: "solution.cpp", Content: code},
				{Name: "main.cpp", Content: fillShim(strings.Replace(cppShim, "TARGET", target, 1), entry)},
			}
		},
	}
}
