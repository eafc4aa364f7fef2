package languages

import (
	"regexp"
	"time"

	"github.com/itstheanurag/coderunner/internal/sandbox"
)

// The shim reflects on Solution.ENTRY and converts the JSON input into its
// declared generic parameter types, so List<List<Integer>> arrives as
// mutable lists of Integer. Several parameters are bound by name from an
// object input, which is why the sources are compiled with -parameters.
const javaShim = `import java.lang.reflect.Array;
import java.lang.reflect.Constructor;
import java.lang.reflect.GenericArrayType;
import java.lang.reflect.InvocationTargetException;
import java.lang.reflect.Method;
import java.lang.reflect.Modifier;
import java.lang.reflect.Parameter;
import java.lang.reflect.ParameterizedType;
import java.lang.reflect.Type;
import java.lang.reflect.WildcardType;
import java.math.BigDecimal;
import java.math.BigInteger;
import java.nio.charset.StandardCharsets;
import java.util.*;

public class CoderunnerMain {
    public static void main(String[] args) throws Exception {
        String raw = new String(System.in.readAllBytes(), StandardCharsets.UTF_8);
        Object input = raw.isBlank() ? null : new Parser(raw).parseDocument();

        Method method = null;
        for (Method m : Solution.class.getDeclaredMethods()) {
            if (!m.getName().equals("ENTRY")) {
                continue;
            }
            if (method == null || m.getParameterCount() == 1) {
                method = m;
            }
        }
        if (method == null) {
            System.err.println("entry point ENTRY not found in class Solution");
            System.exit(2);
        }
        method.setAccessible(true);

        Object[] callArgs = bind(method, input);
        Object target = null;
        if (!Modifier.isStatic(method.getModifiers())) {
            Constructor<Solution> ctor = Solution.class.getDeclaredConstructor();
            ctor.setAccessible(true);
            target = ctor.newInstance();
        }

        Object result;
        try {
            result = method.invoke(target, callArgs);
        } catch (InvocationTargetException e) {
            e.getCause().printStackTrace();
            System.exit(1);
            return;
        }
        StringBuilder out = new StringBuilder();
        write(result, out);
        System.out.print("\nMARKER\n" + out + "\n");
        System.out.flush();
    }

    static Object[] bind(Method m, Object input) {
        Parameter[] params = m.getParameters();
        Type[] types = m.getGenericParameterTypes();
        if (params.length == 0) {
            return new Object[0];
        }
        if (params.length == 1) {
            return new Object[] {convert(input, types[0])};
        }
        if (!(input instanceof Map)) {
            throw new IllegalArgumentException("ENTRY takes " + params.length + " parameters; pass an object keyed by parameter name");
        }
        Map<?, ?> fields = (Map<?, ?>) input;
        Object[] out = new Object[params.length];
        for (int i = 0; i < params.length; i++) {
            String name = params[i].getName();
            if (!fields.containsKey(name)) {
                throw new IllegalArgumentException("input has no field \"" + name + "\"");
            }
            out[i] = convert(fields.get(name), types[i]);
        }
        return out;
    }

    static Object convert(Object v, Type type) {
        Class<?> raw = rawClass(type);
        if (v == null) {
            if (raw.isPrimitive()) {
                throw new IllegalArgumentException("null given for " + raw.getName());
            }
            return null;
        }
        if (raw == Object.class) {
            return v;
        }
        if (raw == int.class || raw == Integer.class) {
            return number(v).intValue();
        }
        if (raw == long.class || raw == Long.class) {
            return number(v).longValue();
        }
        if (raw == double.class || raw == Double.class) {
            return number(v).doubleValue();
        }
        if (raw == float.class || raw == Float.class) {
            return number(v).floatValue();
        }
        if (raw == short.class || raw == Short.class) {
            return number(v).shortValue();
        }
        if (raw == byte.class || raw == Byte.class) {
            return number(v).byteValue();
        }
        if (raw == BigInteger.class) {
            return new BigDecimal(number(v).toString()).toBigInteger();
        }
        if (raw == BigDecimal.class) {
            return new BigDecimal(number(v).toString());
        }
        if (raw == boolean.class || raw == Boolean.class) {
            if (!(v instanceof Boolean)) {
                throw new IllegalArgumentException("expected a boolean, got " + v);
            }
            return v;
        }
        if (raw == char.class || raw == Character.class) {
            String s = string(v);
            if (s.length() != 1) {
                throw new IllegalArgumentException("expected a single character, got \"" + s + "\"");
            }
            return s.charAt(0);
        }
        if (raw == String.class || raw == CharSequence.class) {
            return string(v);
        }
        if (raw.isArray()) {
            List<?> items = list(v);
            Type component = type instanceof GenericArrayType
                ? ((GenericArrayType) type).getGenericComponentType()
                : raw.getComponentType();
            Object arr = Array.newInstance(raw.getComponentType(), items.size());
            for (int i = 0; i < items.size(); i++) {
                Array.set(arr, i, convert(items.get(i), component));
            }
            return arr;
        }
        if (Map.class.isAssignableFrom(raw)) {
            if (!(v instanceof Map)) {
                throw new IllegalArgumentException("expected an object, got " + v);
            }
            Map<Object, Object> out = SortedMap.class.isAssignableFrom(raw) ? new TreeMap<>() : new LinkedHashMap<>();
            for (Map.Entry<?, ?> e : ((Map<?, ?>) v).entrySet()) {
                out.put(convertKey((String) e.getKey(), typeArg(type, 0)), convert(e.getValue(), typeArg(type, 1)));
            }
            return out;
        }
        if (Collection.class.isAssignableFrom(raw) || raw == Iterable.class) {
            Collection<Object> out;
            if (SortedSet.class.isAssignableFrom(raw)) {
                out = new TreeSet<>();
            } else if (Set.class.isAssignableFrom(raw)) {
                out = new LinkedHashSet<>();
            } else if (raw == LinkedList.class) {
                out = new LinkedList<>();
            } else if (raw == PriorityQueue.class) {
                out = new PriorityQueue<>();
            } else if (Queue.class.isAssignableFrom(raw)) {
                out = new ArrayDeque<>();
            } else {
                out = new ArrayList<>();
            }
            Type element = typeArg(type, 0);
            for (Object item : list(v)) {
                out.add(convert(item, element));
            }
            return out;
        }
        throw new IllegalArgumentException("unsupported parameter type " + type.getTypeName());
    }

    static Object convertKey(String key, Type type) {
        Class<?> raw = rawClass(type);
        if (raw == Object.class || raw == String.class || raw == CharSequence.class) {
            return key;
        }
        return convert(new Parser(key).parseDocument(), type);
    }

    static Class<?> rawClass(Type type) {
        if (type instanceof Class) {
            return (Class<?>) type;
        }
        if (type instanceof ParameterizedType) {
            return (Class<?>) ((ParameterizedType) type).getRawType();
        }
        if (type instanceof GenericArrayType) {
            Class<?> component = rawClass(((GenericArrayType) type).getGenericComponentType());
            return Array.newInstance(component, 0).getClass();
        }
        if (type instanceof WildcardType) {
            return rawClass(((WildcardType) type).getUpperBounds()[0]);
        }
        return Object.class;
    }

    static Type typeArg(Type type, int i) {
        if (type instanceof ParameterizedType) {
            Type[] args = ((ParameterizedType) type).getActualTypeArguments();
            if (i < args.length) {
                return args[i];
            }
        }
        return Object.class;
    }

    static Number number(Object v) {
        if (!(v instanceof Number)) {
            throw new IllegalArgumentException("expected a number, got " + v);
        }
        return (Number) v;
    }

    static String string(Object v) {
        if (!(v instanceof String)) {
            throw new IllegalArgumentException("expected a string, got " + v);
        }
        return (String) v;
    }

    static List<?> list(Object v) {
        if (!(v instanceof List)) {
            throw new IllegalArgumentException("expected an array, got " + v);
        }
        return (List<?>) v;
    }

    static void write(Object v, StringBuilder out) {
        if (v == null) {
            out.append("null");
        } else if (v instanceof Boolean || v instanceof Integer || v instanceof Long
            || v instanceof Short || v instanceof Byte || v instanceof BigInteger) {
            out.append(v);
        } else if (v instanceof Double || v instanceof Float) {
            double d = ((Number) v).doubleValue();
            if (Double.isNaN(d) || Double.isInfinite(d)) {
                throw new IllegalArgumentException("result contains a non-finite number");
            }
            out.append(v.toString());
        } else if (v instanceof Number) {
            out.append(new BigDecimal(v.toString()).toString());
        } else if (v instanceof Character || v instanceof CharSequence || v instanceof Enum) {
            quote(v.toString(), out);
        } else if (v.getClass().isArray()) {
            out.append('[');
            for (int i = 0; i < Array.getLength(v); i++) {
                if (i > 0) {
                    out.append(',');
                }
                write(Array.get(v, i), out);
            }
            out.append(']');
        } else if (v instanceof Map) {
            out.append('{');
            boolean first = true;
            for (Map.Entry<?, ?> e : ((Map<?, ?>) v).entrySet()) {
                if (!first) {
                    out.append(',');
                }
                first = false;
                quote(String.valueOf(e.getKey()), out);
                out.append(':');
                write(e.getValue(), out);
            }
            out.append('}');
        } else if (v instanceof Iterable) {
            out.append('[');
            boolean first = true;
            for (Object item : (Iterable<?>) v) {
                if (!first) {
                    out.append(',');
                }
                first = false;
                write(item, out);
            }
            out.append(']');
        } else {
            quote(v.toString(), out);
        }
    }

    static void quote(String s, StringBuilder out) {
        out.append('"');
        for (int i = 0; i < s.length(); i++) {
            char c = s.charAt(i);
            switch (c) {
                case '"': out.append("\\\""); break;
                case '\\': out.append("\\\\"); break;
                case '\n': out.append("\\n"); break;
                case '\r': out.append("\\r"); break;
                case '\t': out.append("\\t"); break;
                case '\b': out.append("\\b"); break;
                case '\f': out.append("\\f"); break;
                default:
                    if (c < 0x20) {
                        out.append(String.format("\\u%04x", (int) c));
                    } else {
                        out.append(c);
                    }
            }
        }
        out.append('"');
    }

    static final class Parser {
        private final String s;
        private int pos;

        Parser(String s) {
            this.s = s;
        }

        Object parseDocument() {
            Object v = parseValue();
            skipSpace();
            if (pos != s.length()) {
                throw error("trailing data");
            }
            return v;
        }

        private Object parseValue() {
            skipSpace();
            switch (peek()) {
                case '{': return parseObject();
                case '[': return parseArray();
                case '"': return parseString();
                case 't': expect("true"); return Boolean.TRUE;
                case 'f': expect("false"); return Boolean.FALSE;
                case 'n': expect("null"); return null;
                default: return parseNumber();
            }
        }

        private Map<String, Object> parseObject() {
            Map<String, Object> m = new LinkedHashMap<>();
            pos++;
            skipSpace();
            if (peek() == '}') {
                pos++;
                return m;
            }
            while (true) {
                skipSpace();
                if (peek() != '"') {
                    throw error("expected a string key");
                }
                String key = parseString();
                skipSpace();
                if (next() != ':') {
                    throw error("expected ':'");
                }
                m.put(key, parseValue());
                skipSpace();
                char c = next();
                if (c == '}') {
                    return m;
                }
                if (c != ',') {
                    throw error("expected ',' or '}'");
                }
            }
        }

        private List<Object> parseArray() {
            List<Object> items = new ArrayList<>();
            pos++;
            skipSpace();
            if (peek() == ']') {
                pos++;
                return items;
            }
            while (true) {
                items.add(parseValue());
                skipSpace();
                char c = next();
                if (c == ']') {
                    return items;
                }
                if (c != ',') {
                    throw error("expected ',' or ']'");
                }
            }
        }

        private String parseString() {
            pos++;
            StringBuilder b = new StringBuilder();
            while (true) {
                char c = next();
                if (c == '"') {
                    return b.toString();
                }
                if (c != '\\') {
                    b.append(c);
                    continue;
                }
                char e = next();
                switch (e) {
                    case '"': case '\\': case '/': b.append(e); break;
                    case 'b': b.append('\b'); break;
                    case 'f': b.append('\f'); break;
                    case 'n': b.append('\n'); break;
                    case 'r': b.append('\r'); break;
                    case 't': b.append('\t'); break;
                    case 'u':
                        if (pos + 4 > s.length()) {
                            throw error("truncated unicode escape");
                        }
                        b.append((char) Integer.parseInt(s.substring(pos, pos + 4), 16));
                        pos += 4;
                        break;
                    default:
                        throw error("invalid escape");
                }
            }
        }

        private Object parseNumber() {
            int start = pos;
            while (pos < s.length() && "+-0123456789.eE".indexOf(s.charAt(pos)) >= 0) {
                pos++;
            }
            String text = s.substring(start, pos);
            if (text.isEmpty()) {
                throw error("unexpected character");
            }
            if (text.indexOf('.') < 0 && text.indexOf('e') < 0 && text.indexOf('E') < 0) {
                BigInteger big = new BigInteger(text);
                if (big.bitLength() < 64) {
                    return big.longValue();
                }
                return big;
            }
            return Double.parseDouble(text);
        }

        private void expect(String word) {
            if (!s.startsWith(word, pos)) {
                throw error("expected " + word);
            }
            pos += word.length();
        }

        private void skipSpace() {
            while (pos < s.length() && Character.isWhitespace(s.charAt(pos))) {
                pos++;
            }
        }

        private char peek() {
            return pos < s.length() ? s.charAt(pos) : 0;
        }

        private char next() {
            if (pos >= s.length()) {
                throw error("unexpected end of input");
            }
            return s.charAt(pos++);
        }

        private IllegalArgumentException error(String msg) {
            return new IllegalArgumentException("invalid input at offset " + pos + ": " + msg);
        }
    }
}
`

var javaPackageClause = regexp.MustCompile(`(?m)^\s*package\s+[\w.]+\s*;`)

func newJavaAdapter() Adapter {
	return &scriptAdapter{
		lang: Language{
			ID:         "java",
			Name:       "Java 21",
			EntryPoint: "solve",
			Config: RuntimeConfig{
				Image:          "eclipse-temurin:21-jdk",
				SourceFile:     "Solution.java",
				CompileCommand: []string{"javac", "-encoding", "UTF-8", "-parameters", "-nowarn", "-d", ".", "Solution.java", "CoderunnerMain.java"},
				CompileTimeout: 30 * time.Second,
				RunCommand: []string{
					"java", "-Xms32m", "-Xmx256m", "-Xss64m",
					"-XX:+UseSerialGC", "-XX:TieredStopAtLevel=1", "-XX:ReservedCodeCacheSize=64m", "-XX:-UsePerfData",
					"-cp", ".", "CoderunnerMain",
				},
			},
			Limits: sandbox.Limits{
				CPUTime:  4 * time.Second,
				WallTime: 10 * time.Second,
				MemoryMB: 512,
			},
		},
		entryExpr: func(entry string) *regexp.Regexp {
			return regexp.MustCompile(`(?s)\bclass\s+Solution\b.*\b` + regexp.QuoteMeta(entry) + `\s*\(`)
		},
		render: func(code, entry string) []sandbox.File {
			return []sandbox.File{
				{Name: "Solution.java", Content: javaPackageClause.ReplaceAllString(code, "")},
				{Name: "CoderunnerMain.java", Content: fillShim(javaShim, entry)},
			}
		},
	}
}
